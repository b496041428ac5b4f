package tax

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Persistence is plain JSON files, one value per file. Save-then-load
// round-trips to an equal value for every type here.

func saveJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (ds Deltas) Save(path string) error { return saveJSON(path, ds) }

func LoadDeltas(path string) (Deltas, error) {
	var ds Deltas
	if err := loadJSON(path, &ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (l LinkedDeltas) Save(path string) error { return saveJSON(path, l) }

func LoadLinkedDeltas(path string) (LinkedDeltas, error) {
	var l LinkedDeltas
	if err := loadJSON(path, &l); err != nil {
		return nil, err
	}
	return l, nil
}

func (inv Inventory) Save(path string) error { return saveJSON(path, inv) }

func LoadInventory(path string) (Inventory, error) {
	var inv Inventory
	if err := loadJSON(path, &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv ConsolidatedInventory) Save(path string) error { return saveJSON(path, inv) }

func LoadConsolidatedInventory(path string) (ConsolidatedInventory, error) {
	var inv ConsolidatedInventory
	if err := loadJSON(path, &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (p *Prices) Save(path string) error { return saveJSON(path, p) }

func LoadPrices(path string) (*Prices, error) {
	p := &Prices{}
	if err := loadJSON(path, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadBalances reads a JSON object of asset to quantity, as exported by
// exchange balance reports.
func LoadBalances(path string) (map[string]Quantity, error) {
	var balances map[string]Quantity
	if err := loadJSON(path, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (s Summary) Save(path string) error { return saveJSON(path, s) }

func (s ConsolidatedSummary) Save(path string) error { return saveJSON(path, s) }

// millisRFC3339 renders a ms-epoch timestamp as UTC RFC3339 with
// millisecond precision, matching the historical export format.
func millisRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// SaveDispositionsCSV writes the lot-based disposition ledger. The money
// column headers carry the quote currency so mixed-jurisdiction outputs
// stay self-describing.
func SaveDispositionsCSV(path string, rows []Disposition, quoteCurrency string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"asset", "quantity", "disposition_date", "acquisition_date",
		"proceeds_" + quoteCurrency, "cost_basis_" + quoteCurrency,
		"capital_gain_" + quoteCurrency, "term",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	for _, r := range rows {
		record := []string{
			r.Asset,
			r.Qty.Fixed(8),
			millisRFC3339(r.DisposedAt),
			millisRFC3339(r.AcquiredAt),
			r.Proceeds.Fixed(8),
			r.CostBasis.Fixed(8),
			r.Gain.Fixed(8),
			r.Term,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// SaveConsolidatedDispositionsCSV writes the average-cost disposition
// ledger. Pools have no acquisition date or holding term.
func SaveConsolidatedDispositionsCSV(path string, rows []Disposition, quoteCurrency string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"asset", "quantity", "disposition_date",
		"proceeds_" + quoteCurrency, "cost_basis_" + quoteCurrency,
		"capital_gain_" + quoteCurrency,
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	for _, r := range rows {
		record := []string{
			r.Asset,
			r.Qty.Fixed(8),
			millisRFC3339(r.DisposedAt),
			r.Proceeds.Fixed(8),
			r.CostBasis.Fixed(8),
			r.Gain.Fixed(8),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
