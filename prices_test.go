package tax

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPricesBucket(t *testing.T) {
	// 2021-01-01T10:47:33Z
	const ms = int64(1609498053000)
	tests := []struct {
		g    Granularity
		want string
	}{
		{M15, "2021-01-01T10:45:00Z"},
		{H1, "2021-01-01T10:00:00Z"},
		{D1, "2021-01-01T00:00:00Z"},
	}
	for _, tc := range tests {
		p := &Prices{Granularity: tc.g}
		if got := p.Bucket(ms); got != tc.want {
			t.Errorf("Bucket(%s) = %q, want %q", tc.g, got, tc.want)
		}
	}
}

func TestPriceAt(t *testing.T) {
	p := testOracle(D1, map[string]map[int64]float64{
		"ETH": {1609459200000: 730},
	})

	price, err := p.PriceAt("ETH", 1609498053000) // same day, later hour
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.NewFromInt(730)) {
		t.Errorf("price = %s, want 730", price)
	}

	if _, err := p.PriceAt("ETH", 1609545600000); !errors.Is(err, ErrLookup) {
		t.Errorf("missing bucket: err = %v, want ErrLookup", err)
	}
	if _, err := p.PriceAt("BTC", 1609498053000); !errors.Is(err, ErrLookup) {
		t.Errorf("missing asset: err = %v, want ErrLookup", err)
	}
}

func TestPricesPatchFillsOnlyGaps(t *testing.T) {
	const day = int64(86400000)
	const start = int64(1609459200000)

	p := testOracle(D1, map[string]map[int64]float64{
		"ETH": {start: 730},
	})
	other := testOracle(D1, map[string]map[int64]float64{
		"ETH": {start: 999, start + day: 740},
		"BTC": {start: 29000},
	})

	p.Patch(other, start, start+2*day)

	existing, err := p.PriceAt("ETH", start)
	if err != nil {
		t.Fatal(err)
	}
	if !existing.Equal(decimal.NewFromInt(730)) {
		t.Errorf("existing bucket overwritten: %s", existing)
	}
	filled, err := p.PriceAt("ETH", start+day)
	if err != nil {
		t.Fatal(err)
	}
	if !filled.Equal(decimal.NewFromInt(740)) {
		t.Errorf("gap = %s, want 740", filled)
	}
	// assets only the other oracle knows get adopted
	if _, err := p.PriceAt("BTC", start); err != nil {
		t.Errorf("BTC not adopted: %v", err)
	}
}

func TestCandleJSON(t *testing.T) {
	raw := `[1609459200, 730.0, 750.5, 710.5, 740.0, 12345.6]`
	var c Candle
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatal(err)
	}
	if c.Timestamp != 1609459200 {
		t.Errorf("timestamp = %d", c.Timestamp)
	}
	if !c.MidPrice().Equal(decimal.RequireFromString("730.5")) {
		t.Errorf("mid = %s, want 730.5", c.MidPrice())
	}

	out, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var back Candle
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Close.Equal(c.Close) || back.Timestamp != c.Timestamp {
		t.Errorf("round trip drifted: %+v", back)
	}
}

func TestLoadPricesDir(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{"2021-01-01T00:00:00Z": 730, "2021-01-02T00:00:00Z": 740}`)
	if err := os.WriteFile(filepath.Join(dir, "ETH.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	// LINK has no file and must only be skipped, not fail the load
	p, err := LoadPricesDir(dir, []string{"ETH", "LINK"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Granularity != D1 {
		t.Errorf("granularity = %s", p.Granularity)
	}
	price, err := p.PriceAt("ETH", 1609545600000)
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.NewFromInt(740)) {
		t.Errorf("price = %s, want 740", price)
	}
	if _, err := p.PriceAt("LINK", 1609459200000); !errors.Is(err, ErrLookup) {
		t.Errorf("skipped asset should be a lookup miss, got %v", err)
	}
}

func TestLoadCandlesDir(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`[
		[1609459200, 730, 750, 710, 740, 100],
		[1609462800, 740, 760, 720, 750, 100]
	]`)
	if err := os.WriteFile(filepath.Join(dir, "ETH-USD.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadCandlesDir(dir, "USD", []string{"ETH"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Granularity != H1 {
		t.Errorf("granularity = %s, want H1 from 3600s spacing", p.Granularity)
	}
	price, err := p.PriceAt("ETH", 1609462800000)
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.NewFromInt(740)) {
		t.Errorf("price = %s, want (760+720)/2", price)
	}
}
