package tax

import (
	"github.com/shopspring/decimal"
)

// test fixtures shared across the package tests

func testDelta(ts int64, dir Direction, kind Kind, asset string, qty float64, host Host, account, id string) Delta {
	return Delta{
		Timestamp:  ts,
		Direction:  dir,
		Kind:       kind,
		Asset:      asset,
		Qty:        Q(qty),
		Host:       host,
		Account:    account,
		Identifier: id,
	}
}

// testOracle builds a price oracle from per-asset (ms timestamp, price)
// points, bucketed at the given granularity.
func testOracle(g Granularity, prices map[string]map[int64]float64) *Prices {
	p := &Prices{Granularity: g, Map: make(map[string]map[string]decimal.Decimal)}
	for asset, history := range prices {
		buckets := make(map[string]decimal.Decimal, len(history))
		for ms, price := range history {
			buckets[p.Bucket(ms)] = decimal.NewFromFloat(price)
		}
		p.Map[asset] = buckets
	}
	return p
}
