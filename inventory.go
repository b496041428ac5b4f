package tax

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// millisYear is 365.25 days in milliseconds, the long-term holding
// threshold.
const millisYear int64 = 31557600000

// Method selects which lot a disposition consumes first.
type Method string

const (
	// Fifo consumes the earliest lot.
	Fifo Method = "FIFO"
	// Lifo consumes the most recent lot.
	Lifo Method = "LIFO"
	// SpecificID consumes the earliest lot while it qualifies as long-term,
	// otherwise the most recent one.
	SpecificID Method = "Specific_Id"
)

// ParseMethod maps a user-supplied method name (case as shown on the
// constants) to a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Fifo, Lifo, SpecificID:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown inventory method %q (want FIFO, LIFO or Specific_Id)", s)
}

// Summary is the per-run tax total.
type Summary struct {
	InventoryMethod       Method `json:"inventory_method"`
	Income                Money  `json:"income"`
	ShortTermCapitalGains Money  `json:"short_term_capital_gains"`
	LongTermCapitalGains  Money  `json:"long_term_capital_gains"`
}

// Disposition is one realized slice of a disposal: the part of an Out that
// one consumed lot covered.
type Disposition struct {
	Asset      string
	Qty        Quantity
	DisposedAt int64 // ms epoch
	AcquiredAt int64 // ms epoch
	Proceeds   Money
	CostBasis  Money
	Gain       Money
	Term       string // "long" or "short"
}

// Inventory maps each inventory symbol to its open lots, oldest first.
// It is the carry-forward state between accounting periods.
type Inventory map[string][]Lot

// NewZeroCostInventory seeds an inventory from opening balances with no
// known basis. Used for the very first period, when acquisition history
// predates the records.
func NewZeroCostInventory(balances map[string]Quantity, timestamp int64, quoteCurrency string) Inventory {
	inv := make(Inventory, len(balances))
	for asset, qty := range balances {
		inv[asset] = []Lot{{Timestamp: timestamp, Qty: qty, Cost: M(0, quoteCurrency)}}
	}
	return inv
}

// AddAsset registers an asset with no open lots.
func (inv Inventory) AddAsset(asset string) {
	if _, ok := inv[asset]; !ok {
		inv[asset] = []Lot{}
	}
}

// ConsolidateAlias folds the alias entry's lots into name's, re-sorted by
// acquisition time, and drops the alias. Used when two symbols turn out to
// be the same economic asset (a rename, a wrapper).
func (inv Inventory) ConsolidateAlias(name, alias string) {
	merged := append(inv[name], inv[alias]...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	inv[name] = merged
	delete(inv, alias)
}

// Balance returns the summed open quantity for an asset.
func (inv Inventory) Balance(asset string) Quantity {
	var total Quantity
	for _, l := range inv[asset] {
		total = total.Add(l.Qty)
	}
	return total
}

// CheckBalances compares each expected closing balance against the
// inventory, folding raw asset ids through the alias table first. Any
// difference beyond epsilon is a data-integrity failure: it means deltas
// are missing or double-counted somewhere in the period.
func (inv Inventory) CheckBalances(expected map[string]Quantity, epsilon decimal.Decimal) error {
	folded := make(map[string]Quantity, len(expected))
	for asset, qty := range expected {
		sym := TaxTicker(asset)
		folded[sym] = folded[sym].Add(qty)
	}
	assets := make([]string, 0, len(folded))
	for a := range folded {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		want := folded[asset]
		got := inv.Balance(asset)
		diff := got.Sub(want).Abs()
		if diff.GreaterThan(Q(epsilon)) {
			return fmt.Errorf("%w: %s balance is %s, expected %s (off by %s)",
				ErrDataIntegrity, asset, got, want, diff)
		}
	}

	// The other direction: a fungible holding the reported balances never
	// mention is just as much a discrepancy as a wrong quantity.
	held := make([]string, 0, len(inv))
	for a := range inv {
		held = append(held, a)
	}
	sort.Strings(held)
	for _, asset := range held {
		if IsLiquidityPosition(asset) {
			continue
		}
		if _, ok := folded[asset]; ok {
			continue
		}
		if got := inv.Balance(asset); got.Abs().GreaterThan(Q(epsilon)) {
			return fmt.Errorf("%w: %s balance is %s but the asset is missing from the reported balances",
				ErrDataIntegrity, asset, got)
		}
	}
	return nil
}

// Ledger replays linked delta groups against an inventory, realizing
// gains. One Ledger serves one run.
type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{log: log}
}

// Apply replays the groups in order, mutating inv, and returns the period
// summary plus the full disposition ledger. Within each group all Ins are
// booked before any Out, so a swap's acquired leg exists before its
// disposed leg realizes against it.
//
// Any invariant violation aborts with ErrDataIntegrity and inv must be
// considered corrupt; callers should not persist it.
func (led *Ledger) Apply(inv Inventory, linked LinkedDeltas, quoteCurrency string, prices *Prices, method Method) (Summary, []Disposition, error) {
	smallest, err := smallestPositionByPair(linked)
	if err != nil {
		return Summary{}, nil, err
	}

	income := M(0, quoteCurrency)
	shortGains := M(0, quoteCurrency)
	longGains := M(0, quoteCurrency)
	var dispositions []Disposition

	for i := range linked {
		g := &linked[i]
		for _, d := range g.Ins {
			if !taxable(d.Kind) {
				continue
			}
			in, err := led.acquire(inv, g, d, quoteCurrency, prices)
			if err != nil {
				return Summary{}, nil, err
			}
			income = income.Add(in)
		}
		for _, d := range g.Outs {
			if !taxable(d.Kind) {
				continue
			}
			rows, err := led.dispose(inv, g, d, quoteCurrency, prices, method, smallest)
			if err != nil {
				return Summary{}, nil, err
			}
			for _, row := range rows {
				if row.Term == "long" {
					longGains = longGains.Add(row.Gain)
				} else {
					shortGains = shortGains.Add(row.Gain)
				}
				if row.Asset != quoteCurrency {
					dispositions = append(dispositions, row)
				}
			}
		}
	}

	led.log.Info("ledger: replay complete",
		zap.String("method", string(method)),
		zap.String("income", income.String()),
		zap.String("short_term", shortGains.String()),
		zap.String("long_term", longGains.String()),
		zap.Int("dispositions", len(dispositions)))

	return Summary{
		InventoryMethod:       method,
		Income:                income,
		ShortTermCapitalGains: shortGains,
		LongTermCapitalGains:  longGains,
	}, dispositions, nil
}

// taxable filters out pure repackaging kinds: wrapping and migrations
// change the token contract, not the holding.
func taxable(k Kind) bool {
	switch k {
	case WrapEth, UnwrapEth, TokenMigration:
		return false
	}
	return true
}

// acquire books one In as a new lot and returns its income component.
func (led *Ledger) acquire(inv Inventory, g *DeltaGroup, d Delta, quoteCurrency string, prices *Prices) (Money, error) {
	symbol := InventorySymbol(d)

	in, err := g.IncomeFor(d, quoteCurrency, prices)
	if err != nil {
		return Money{}, err
	}
	cost, err := g.CostFor(d, quoteCurrency, prices)
	if err != nil {
		return Money{}, err
	}
	if cost.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative cost %s for %s in %s (identifier %q)",
			ErrDataIntegrity, cost, d.Qty, d.Asset, d.Identifier)
	}

	lots := inv[symbol]
	if len(lots) == 1 && lots[0].IsDeficit() {
		// Units were sold before this acquisition was seen. The acquisition
		// must cover the whole shortfall; the merged lot carries the full
		// cost at the acquisition's timestamp.
		ph := lots[0]
		if ph.Timestamp != 0 || !ph.Cost.IsZero() {
			return Money{}, fmt.Errorf("%w: malformed deficit placeholder for %s: %+v", ErrDataIntegrity, symbol, ph)
		}
		if !ph.Qty.Abs().LessThan(d.Qty) {
			return Money{}, fmt.Errorf("%w: deficit of %s %s exceeds incoming %s (identifier %q)",
				ErrDataIntegrity, ph.Qty.Abs(), symbol, d.Qty, d.Identifier)
		}
		led.log.Warn("ledger: merging deficit placeholder",
			zap.String("asset", symbol),
			zap.String("deficit", ph.Qty.String()),
			zap.String("incoming", d.Qty.String()))
		inv[symbol] = []Lot{{
			Timestamp:  d.Timestamp,
			Qty:        ph.Qty.Add(d.Qty),
			Cost:       cost,
			Host:       d.Host,
			Identifier: d.Identifier,
		}}
		return in, nil
	}

	inv[symbol] = append(lots, Lot{
		Timestamp:  d.Timestamp,
		Qty:        d.Qty,
		Cost:       cost,
		Host:       d.Host,
		Identifier: d.Identifier,
	})
	return in, nil
}

// dispose consumes lots to cover one Out and returns the realized rows,
// one per consumed lot. A shortfall leaves a deficit placeholder and
// realizes nothing for the uncovered portion; the next acquisition settles
// it.
func (led *Ledger) dispose(inv Inventory, g *DeltaGroup, d Delta, quoteCurrency string, prices *Prices, method Method, smallest map[string]Quantity) ([]Disposition, error) {
	symbol := InventorySymbol(d)

	totalRevenue, err := g.RevenueFor(d, quoteCurrency, prices)
	if err != nil {
		return nil, err
	}

	rem := d.Qty
	var consumed []Lot
	for rem.IsPositive() {
		lots := inv[symbol]
		if len(lots) == 0 {
			led.log.Warn("ledger: disposal exceeds holdings",
				zap.String("asset", symbol),
				zap.String("shortfall", rem.String()),
				zap.String("identifier", d.Identifier))
			inv[symbol] = append(lots, newDeficitLot(rem, quoteCurrency))
			break
		}
		i := 0
		switch method {
		case Lifo:
			i = len(lots) - 1
		case SpecificID:
			if lots[0].Age(d.Timestamp) < millisYear {
				i = len(lots) - 1
			}
		}
		lot := lots[i]
		if rem.GreaterThanOrEqual(lot.Qty) {
			inv[symbol] = append(lots[:i], lots[i+1:]...)
			rem = rem.Sub(lot.Qty)
			consumed = append(consumed, lot)
		} else {
			part, rest := lot.remove(rem)
			lots[i] = rest
			rem = rem.Sub(part.Qty)
			consumed = append(consumed, part)
		}
	}

	if err := cleanupPositionDust(inv, symbol, smallest); err != nil {
		return nil, err
	}

	rows := make([]Disposition, 0, len(consumed))
	for _, c := range consumed {
		proceeds := totalRevenue.Mul(c.Qty).Div(d.Qty)
		gain := proceeds.Sub(c.Cost)
		term := "short"
		if c.Age(d.Timestamp) > millisYear {
			term = "long"
		}
		rows = append(rows, Disposition{
			Asset:      symbol,
			Qty:        c.Qty,
			DisposedAt: d.Timestamp,
			AcquiredAt: c.Timestamp,
			Proceeds:   proceeds,
			CostBasis:  c.Cost,
			Gain:       gain,
			Term:       term,
		})
	}
	return rows, nil
}

// cleanupPositionDust drops a concentrated-liquidity position entry once
// its lots are gone, or once the single remaining lot is smaller than the
// smallest position ever observed for that token pair. Position closes
// rarely burn the exact minted quantity, so a residual speck is noise, not
// a holding.
func cleanupPositionDust(inv Inventory, symbol string, smallest map[string]Quantity) error {
	if !IsLiquidityPosition(symbol) {
		return nil
	}
	lots := inv[symbol]
	switch len(lots) {
	case 0:
		delete(inv, symbol)
	case 1:
		pair, err := PositionPairName(symbol)
		if err != nil {
			return err
		}
		if lots[0].Qty.LessThan(smallest[pair]) {
			delete(inv, symbol)
		}
	default:
		return fmt.Errorf("%w: liquidity position %s holds %d lots, expected at most one",
			ErrDataIntegrity, symbol, len(lots))
	}
	return nil
}

// smallestPositionByPair scans every delta for concentrated-liquidity
// position quantities and records the smallest seen per token pair. The
// result is the dust threshold for cleanupPositionDust.
func smallestPositionByPair(linked LinkedDeltas) (map[string]Quantity, error) {
	smallest := make(map[string]Quantity)
	for i := range linked {
		for d := range linked[i].All() {
			if !IsLiquidityPosition(d.Asset) {
				continue
			}
			pair, err := PositionPairName(d.Asset)
			if err != nil {
				return nil, err
			}
			if cur, ok := smallest[pair]; !ok || d.Qty.LessThan(cur) {
				smallest[pair] = d.Qty
			}
		}
	}
	return smallest, nil
}
