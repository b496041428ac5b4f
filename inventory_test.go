package tax

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// saleGroup builds a direct sale of qty asset for usd quote currency.
func saleGroup(ts int64, asset string, qty, usd float64) DeltaGroup {
	return DeltaGroup{
		Ins:  []Delta{testDelta(ts, In, Match, "USD", usd, Coinbase, "a", "s")},
		Outs: []Delta{testDelta(ts, Out, Match, asset, qty, Coinbase, "a", "s")},
	}
}

func TestApplyFifo(t *testing.T) {
	// opening lot of 10 at cost 100; a year and a millisecond later, 4
	// units go for 60
	ts := millisYear + 1
	inv := Inventory{"XYZ": {{Timestamp: 0, Qty: Q(10), Cost: M(100, "USD")}}}
	oracle := testOracle(D1, map[string]map[int64]float64{"XYZ": {ts: 15}})
	linked := LinkedDeltas{saleGroup(ts, "XYZ", 4, 60)}

	summary, rows, err := NewLedger(nil).Apply(inv, linked, "USD", oracle, Fifo)
	require.NoError(t, err)

	require.True(t, summary.LongTermCapitalGains.Equal(M(20, "USD")),
		"long = %s", summary.LongTermCapitalGains)
	require.True(t, summary.ShortTermCapitalGains.IsZero(),
		"short = %s", summary.ShortTermCapitalGains)
	require.True(t, summary.Income.IsZero())

	require.Len(t, rows, 1)
	require.Equal(t, "long", rows[0].Term)
	require.True(t, rows[0].Proceeds.Equal(M(60, "USD")))
	require.True(t, rows[0].CostBasis.Equal(M(40, "USD")))
	require.True(t, rows[0].Gain.Equal(M(20, "USD")))

	require.Len(t, inv["XYZ"], 1)
	require.True(t, inv["XYZ"][0].Qty.Equal(Q(6)))
	require.True(t, inv["XYZ"][0].Cost.Equal(M(60, "USD")))
}

func TestApplyFifoVsLifo(t *testing.T) {
	// same two-lot book, different cost per lot: the methods realize
	// different gains but leave the same quantity behind
	ts := 2 * millisYear
	openInv := func() Inventory {
		return Inventory{"XYZ": {
			{Timestamp: 0, Qty: Q(5), Cost: M(50, "USD")},
			{Timestamp: millisYear, Qty: Q(5), Cost: M(100, "USD")},
		}}
	}
	oracle := testOracle(D1, map[string]map[int64]float64{"XYZ": {ts: 15}})
	linked := LinkedDeltas{saleGroup(ts, "XYZ", 3, 45)}

	fifoInv := openInv()
	fifo, _, err := NewLedger(nil).Apply(fifoInv, linked, "USD", oracle, Fifo)
	require.NoError(t, err)

	lifoInv := openInv()
	lifo, _, err := NewLedger(nil).Apply(lifoInv, linked, "USD", oracle, Lifo)
	require.NoError(t, err)

	fifoGain := fifo.ShortTermCapitalGains.Add(fifo.LongTermCapitalGains)
	lifoGain := lifo.ShortTermCapitalGains.Add(lifo.LongTermCapitalGains)
	require.True(t, fifoGain.Equal(M(15, "USD")), "fifo gain = %s", fifoGain)
	require.True(t, lifoGain.Equal(M(-15, "USD")), "lifo gain = %s", lifoGain)

	require.True(t, fifoInv.Balance("XYZ").Equal(lifoInv.Balance("XYZ")))
	require.True(t, fifoInv.Balance("XYZ").Equal(Q(7)))
}

func TestApplySpecificID(t *testing.T) {
	// one lot past the long-term threshold, one newer: the older one goes
	// first
	ts := millisYear + 1000
	inv := Inventory{"XYZ": {
		{Timestamp: 0, Qty: Q(5), Cost: M(50, "USD")},
		{Timestamp: ts - 1000, Qty: Q(5), Cost: M(100, "USD")},
	}}
	oracle := testOracle(D1, map[string]map[int64]float64{"XYZ": {ts: 15}})
	linked := LinkedDeltas{saleGroup(ts, "XYZ", 2, 30)}

	summary, rows, err := NewLedger(nil).Apply(inv, linked, "USD", oracle, SpecificID)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	require.Equal(t, int64(0), rows[0].AcquiredAt)
	require.Equal(t, "long", rows[0].Term)
	require.True(t, summary.LongTermCapitalGains.Equal(M(10, "USD")))
	require.True(t, inv["XYZ"][0].Qty.Equal(Q(3)))
}

func TestApplySpecificIDFallsBackToNewest(t *testing.T) {
	// nothing held long enough: consume the most recent lot instead
	ts := int64(1000000)
	inv := Inventory{"XYZ": {
		{Timestamp: 0, Qty: Q(5), Cost: M(50, "USD")},
		{Timestamp: 500000, Qty: Q(5), Cost: M(100, "USD")},
	}}
	oracle := testOracle(D1, map[string]map[int64]float64{"XYZ": {ts: 15}})
	linked := LinkedDeltas{saleGroup(ts, "XYZ", 2, 30)}

	_, rows, err := NewLedger(nil).Apply(inv, linked, "USD", oracle, SpecificID)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	require.Equal(t, int64(500000), rows[0].AcquiredAt)
	require.Equal(t, "short", rows[0].Term)
	require.True(t, inv["XYZ"][0].Qty.Equal(Q(5)))
	require.True(t, inv["XYZ"][1].Qty.Equal(Q(3)))
}

func TestApplyDeficitPlaceholderAndMerge(t *testing.T) {
	sellTS := int64(1000000)
	buyTS := int64(2000000)
	oracle := testOracle(D1, map[string]map[int64]float64{"XYZ": {sellTS: 10, buyTS: 10}})

	inv := Inventory{}
	linked := LinkedDeltas{
		saleGroup(sellTS, "XYZ", 5, 50),
		{
			Ins:  []Delta{testDelta(buyTS, In, Match, "XYZ", 8, Coinbase, "a", "b")},
			Outs: []Delta{testDelta(buyTS, Out, Match, "USD", 80, Coinbase, "a", "b")},
		},
	}

	summary, rows, err := NewLedger(nil).Apply(inv, linked, "USD", oracle, Fifo)
	require.NoError(t, err)

	// the uncovered disposal realizes nothing; the later acquisition
	// absorbs the shortfall
	require.Empty(t, rows)
	require.True(t, summary.ShortTermCapitalGains.IsZero())
	require.True(t, summary.LongTermCapitalGains.IsZero())

	require.Len(t, inv["XYZ"], 1)
	lot := inv["XYZ"][0]
	require.Equal(t, buyTS, lot.Timestamp)
	require.True(t, lot.Qty.Equal(Q(3)), "qty = %s", lot.Qty)
	require.True(t, lot.Cost.Equal(M(80, "USD")), "cost = %s", lot.Cost)
}

func TestApplyDeficitTooLargeFatal(t *testing.T) {
	sellTS := int64(1000000)
	buyTS := int64(2000000)
	oracle := testOracle(D1, map[string]map[int64]float64{"XYZ": {sellTS: 10, buyTS: 10}})

	inv := Inventory{}
	linked := LinkedDeltas{
		saleGroup(sellTS, "XYZ", 5, 50),
		{
			Ins:  []Delta{testDelta(buyTS, In, Match, "XYZ", 3, Coinbase, "a", "b")},
			Outs: []Delta{testDelta(buyTS, Out, Match, "USD", 30, Coinbase, "a", "b")},
		},
	}

	_, _, err := NewLedger(nil).Apply(inv, linked, "USD", oracle, Fifo)
	require.True(t, errors.Is(err, ErrDataIntegrity))
}

func TestApplyPositionDustCleanup(t *testing.T) {
	position := "UNI-V3-LIQUIDITY:42_ETH_USDC_3000_-100_100"
	mintTS := int64(1000000)
	closeTS := int64(2000000)
	oracle := testOracle(D1, map[string]map[int64]float64{
		"ETH": {mintTS: 2000, closeTS: 2000},
	})

	inv := Inventory{"ETH": {{Timestamp: 0, Qty: Q(2), Cost: M(1000, "USD")}}}
	linked := LinkedDeltas{
		{
			Ins:  []Delta{testDelta(mintTS, In, ManageLiquidity, position, 1, Mainnet, "0xw", "0xmint")},
			Outs: []Delta{testDelta(mintTS, Out, ManageLiquidity, "ETH", 1, Mainnet, "0xw", "0xmint")},
		},
		{
			Ins:  []Delta{testDelta(closeTS, In, ManageLiquidity, "ETH", 1, Mainnet, "0xw", "0xclose")},
			Outs: []Delta{testDelta(closeTS, Out, ManageLiquidity, position, 0.6, Mainnet, "0xw", "0xclose")},
		},
	}

	_, _, err := NewLedger(nil).Apply(inv, linked, "USD", oracle, Fifo)
	require.NoError(t, err)

	// 0.4 position units remain, below the smallest observed position for
	// the pair: the entry is gone
	require.NotContains(t, inv, position)
	require.Contains(t, inv, "ETH")
}

func TestCheckBalances(t *testing.T) {
	inv := Inventory{"ETH": {
		{Timestamp: 0, Qty: Q(2), Cost: M(1000, "USD")},
		{Timestamp: 1, Qty: Q(1), Cost: M(700, "USD")},
	}}
	epsilon := decimal.RequireFromString("0.000000001")

	// WETH folds into ETH before comparing
	err := inv.CheckBalances(map[string]Quantity{"WETH": Q(1), "ETH": Q(2)}, epsilon)
	require.NoError(t, err)

	err = inv.CheckBalances(map[string]Quantity{"ETH": Q(2.5)}, epsilon)
	require.True(t, errors.Is(err, ErrDataIntegrity))
}

func TestCheckBalancesUnreportedAsset(t *testing.T) {
	inv := Inventory{
		"ETH":  {{Timestamp: 0, Qty: Q(3), Cost: M(1000, "USD")}},
		"LINK": {{Timestamp: 0, Qty: Q(50), Cost: M(400, "USD")}},
	}
	epsilon := decimal.RequireFromString("0.000000001")

	// a held asset the reported balances never mention is a discrepancy
	err := inv.CheckBalances(map[string]Quantity{"ETH": Q(3)}, epsilon)
	require.True(t, errors.Is(err, ErrDataIntegrity))
	require.Contains(t, err.Error(), "LINK")

	// a sub-epsilon speck is not
	inv["LINK"] = []Lot{{Timestamp: 0, Qty: Q(0.0000000001), Cost: M(0, "USD")}}
	err = inv.CheckBalances(map[string]Quantity{"ETH": Q(3)}, epsilon)
	require.NoError(t, err)

	// position entries are never in external balance reports
	inv["UNI-V3-LIQUIDITY:42_ETH_USDC_3000_-100_100"] = []Lot{
		{Timestamp: 0, Qty: Q(1), Cost: M(0, "USD")},
	}
	err = inv.CheckBalances(map[string]Quantity{"ETH": Q(3)}, epsilon)
	require.NoError(t, err)
}

func TestConsolidateAlias(t *testing.T) {
	inv := Inventory{
		"ETH":  {{Timestamp: 10, Qty: Q(1), Cost: M(300, "USD")}},
		"WETH": {{Timestamp: 5, Qty: Q(2), Cost: M(500, "USD")}},
	}
	inv.ConsolidateAlias("ETH", "WETH")

	require.NotContains(t, inv, "WETH")
	require.Len(t, inv["ETH"], 2)
	// merged lots stay ordered by acquisition time
	require.Equal(t, int64(5), inv["ETH"][0].Timestamp)
	require.Equal(t, int64(10), inv["ETH"][1].Timestamp)
}

func TestNewZeroCostInventory(t *testing.T) {
	inv := NewZeroCostInventory(map[string]Quantity{"BTC": Q(1.5)}, 42, "USD")
	require.Len(t, inv["BTC"], 1)
	require.Equal(t, int64(42), inv["BTC"][0].Timestamp)
	require.True(t, inv["BTC"][0].Qty.Equal(Q(1.5)))
	require.True(t, inv["BTC"][0].Cost.IsZero())
}

func TestLotRemoveSplitsProportionally(t *testing.T) {
	lot := Lot{Timestamp: 7, Qty: Q(10), Cost: M(100, "USD")}
	part, rest := lot.remove(Q(4))

	require.True(t, part.Qty.Equal(Q(4)))
	require.True(t, part.Cost.Equal(M(40, "USD")))
	require.True(t, rest.Qty.Equal(Q(6)))
	require.True(t, rest.Cost.Equal(M(60, "USD")))
	require.Equal(t, int64(7), rest.Timestamp)
}
