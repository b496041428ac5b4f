package tax

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Holding is one average-cost pool: total quantity held and total cost
// paid for it. The pool has no per-acquisition structure, so there is no
// short/long term split.
type Holding struct {
	Qty  Quantity `json:"qty"`
	Cost Money    `json:"cost"`
}

// AveragePrice returns cost per unit.
func (h Holding) AveragePrice() Money { return h.Cost.Div(h.Qty) }

// CostBasis returns the pool's cost share for qty units at the current
// average price.
func (h Holding) CostBasis(qty Quantity) Money { return h.AveragePrice().Mul(qty) }

// MarshalJSON keeps the qty/cost field order stable.
func (h Holding) MarshalJSON() ([]byte, error) {
	w := &jsonObjectWriter{}
	w.Append("qty", h.Qty)
	w.Append("cost", h.Cost)
	return w.MarshalJSON()
}

func (h *Holding) UnmarshalJSON(data []byte) error {
	var raw struct {
		Qty  Quantity `json:"qty"`
		Cost Money    `json:"cost"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = Holding(raw)
	return nil
}

// ConsolidatedInventory maps each inventory symbol to its average-cost
// pool. It is the jurisdiction-alternate to the lot-based Inventory.
type ConsolidatedInventory map[string]Holding

// ConsolidatedSummary is the per-run total under average-cost accounting.
type ConsolidatedSummary struct {
	Income       Money `json:"income"`
	CapitalGains Money `json:"capital_gains"`
}

// NewZeroCostConsolidatedInventory seeds pools from opening balances with
// no known basis.
func NewZeroCostConsolidatedInventory(balances map[string]Quantity, quoteCurrency string) ConsolidatedInventory {
	inv := make(ConsolidatedInventory, len(balances))
	for asset, qty := range balances {
		inv[asset] = Holding{Qty: qty, Cost: M(0, quoteCurrency)}
	}
	return inv
}

// ConsolidateAlias folds the alias pool into name's and drops the alias.
func (inv ConsolidatedInventory) ConsolidateAlias(name, alias string) {
	h := inv[name]
	h.Qty = h.Qty.Add(inv[alias].Qty)
	h.Cost = h.Cost.Add(inv[alias].Cost)
	inv[name] = h
	delete(inv, alias)
}

// Apply replays the groups against the pools, Ins before Outs per group,
// and returns the summary plus disposition rows. There is no lot
// selection: an Out removes quantity and a proportional cost share at the
// pool's current average price.
func (led *Ledger) ApplyConsolidated(inv ConsolidatedInventory, linked LinkedDeltas, quoteCurrency string, prices *Prices) (ConsolidatedSummary, []Disposition, error) {
	income := M(0, quoteCurrency)
	gains := M(0, quoteCurrency)
	var dispositions []Disposition

	for i := range linked {
		g := &linked[i]
		for _, d := range g.Ins {
			if !taxable(d.Kind) {
				continue
			}
			symbol := InventorySymbol(d)

			in, err := g.IncomeFor(d, quoteCurrency, prices)
			if err != nil {
				return ConsolidatedSummary{}, nil, err
			}
			income = income.Add(in)

			cost, err := g.CostFor(d, quoteCurrency, prices)
			if err != nil {
				return ConsolidatedSummary{}, nil, err
			}
			if cost.IsNegative() {
				return ConsolidatedSummary{}, nil, fmt.Errorf("%w: negative cost %s for %s in %s (identifier %q)",
					ErrDataIntegrity, cost, d.Qty, d.Asset, d.Identifier)
			}

			h := inv[symbol]
			if h.Qty.IsNegative() {
				// Same bounded tolerance as the lot ledger's deficit
				// placeholder: the acquisition must cover the shortfall.
				if !h.Qty.Abs().LessThan(d.Qty) {
					return ConsolidatedSummary{}, nil, fmt.Errorf("%w: deficit of %s %s exceeds incoming %s (identifier %q)",
						ErrDataIntegrity, h.Qty.Abs(), symbol, d.Qty, d.Identifier)
				}
				led.log.Warn("ledger: covering negative pool",
					zap.String("asset", symbol),
					zap.String("deficit", h.Qty.String()),
					zap.String("incoming", d.Qty.String()))
			}
			h.Qty = h.Qty.Add(d.Qty)
			h.Cost = h.Cost.Add(cost)
			inv[symbol] = h
		}
		for _, d := range g.Outs {
			if !taxable(d.Kind) {
				continue
			}
			symbol := InventorySymbol(d)

			revenue, err := g.RevenueFor(d, quoteCurrency, prices)
			if err != nil {
				return ConsolidatedSummary{}, nil, err
			}

			h := inv[symbol]
			// an empty pool has no basis to carry out; the pool goes
			// negative and the next acquisition must cover it
			basis := M(0, quoteCurrency)
			if !h.Qty.IsZero() {
				basis = h.CostBasis(d.Qty)
			}
			h.Qty = h.Qty.Sub(d.Qty)
			h.Cost = h.Cost.Sub(basis)
			inv[symbol] = h

			gain := revenue.Sub(basis)
			gains = gains.Add(gain)

			if symbol != quoteCurrency {
				dispositions = append(dispositions, Disposition{
					Asset:      symbol,
					Qty:        d.Qty,
					DisposedAt: d.Timestamp,
					Proceeds:   revenue,
					CostBasis:  basis,
					Gain:       gain,
				})
			}
		}
	}

	led.log.Info("ledger: consolidated replay complete",
		zap.String("income", income.String()),
		zap.String("capital_gains", gains.String()),
		zap.Int("dispositions", len(dispositions)))

	return ConsolidatedSummary{Income: income, CapitalGains: gains}, dispositions, nil
}
