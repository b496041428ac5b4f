package tax

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeltaWireFormat(t *testing.T) {
	// a record as the historical exports wrote it
	raw := `{
		"timestamp": 1609459200000,
		"direction": "In",
		"ilk": "Swap",
		"asset": "UNI",
		"qty": 12.5,
		"host": "Mainnet",
		"account": "0xwallet",
		"identifier": "0xhash",
		"linked_to": [3, 7]
	}`

	var d Delta
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatal(err)
	}
	if d.Direction != In || d.Kind != Swap || d.Host != Mainnet {
		t.Errorf("decoded %q %q %q", d.Direction, d.Kind, d.Host)
	}
	if !d.Qty.Equal(Q(12.5)) {
		t.Errorf("qty = %s, want 12.5", d.Qty)
	}
	if len(d.LinkedTo) != 2 {
		t.Errorf("linked_to = %v", d.LinkedTo)
	}
}

func TestDeltaRejectsUnknownEnum(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"direction", `{"timestamp":1,"direction":"Sideways","ilk":"Swap","asset":"A","qty":1,"host":"Mainnet","account":"","identifier":""}`},
		{"ilk", `{"timestamp":1,"direction":"In","ilk":"Teleport","asset":"A","qty":1,"host":"Mainnet","account":"","identifier":""}`},
		{"host", `{"timestamp":1,"direction":"In","ilk":"Swap","asset":"A","qty":1,"host":"Atlantis","account":"","identifier":""}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d Delta
			if err := json.Unmarshal([]byte(tc.raw), &d); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

// roundTrip marshals v, unmarshals into out, re-marshals, and compares
// bytes. Equality through the wire is the contract carry-forward files
// depend on.
func roundTrip(t *testing.T, v, out any) {
	t.Helper()
	first, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(first, out); err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("round trip drifted:\n first: %s\nsecond: %s", first, second)
	}
}

func TestRoundTripLinkedDeltas(t *testing.T) {
	linked := LinkedDeltas{{
		Ins:  []Delta{testDelta(1609459200000, In, Match, "BTC", 0.5, Coinbase, "acct", "t1")},
		Outs: []Delta{testDelta(1609459200000, Out, Match, "USD", 14500, Coinbase, "acct", "t1")},
	}}
	var out LinkedDeltas
	roundTrip(t, linked, &out)
}

func TestRoundTripInventory(t *testing.T) {
	inv := Inventory{
		"ETH": {
			{Timestamp: 1600000000000, Qty: Q(2), Cost: M(700, "USD"), Host: Mainnet, Identifier: "0xbuy"},
			{Timestamp: 0, Qty: Q(-0.25), Cost: M(0, "USD")},
		},
	}
	var out Inventory
	roundTrip(t, inv, &out)

	if !out["ETH"][1].IsDeficit() {
		t.Error("deficit placeholder lost through the wire")
	}
}

func TestRoundTripConsolidatedInventory(t *testing.T) {
	inv := ConsolidatedInventory{"BTC": {Qty: Q(1.5), Cost: M(30000, "USD")}}
	var out ConsolidatedInventory
	roundTrip(t, inv, &out)
}

func TestRoundTripSummary(t *testing.T) {
	s := Summary{
		InventoryMethod:       Fifo,
		Income:                M(1200, "USD"),
		ShortTermCapitalGains: M(-300.5, "USD"),
		LongTermCapitalGains:  M(7000, "USD"),
	}
	var out Summary
	roundTrip(t, s, &out)
}

func TestSaveLoadDeltas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deltas.json")
	ds := Deltas{
		testDelta(1609459200000, In, Swap, "UNI", 12.5, Mainnet, "0xw", "0xh"),
		testDelta(1609459201000, Out, SwapGas, "ETH", 0.002, Mainnet, "0xw", "0xh"),
	}
	if err := ds.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadDeltas(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || !loaded[0].Qty.Equal(Q(12.5)) || loaded[1].Kind != SwapGas {
		t.Errorf("loaded %+v", loaded)
	}
}

func TestSaveDispositionsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	rows := []Disposition{{
		Asset:      "ETH",
		Qty:        Q(1.5),
		DisposedAt: 1609459200000,
		AcquiredAt: 1577836800000,
		Proceeds:   M(1100, "USD"),
		CostBasis:  M(200, "USD"),
		Gain:       M(900, "USD"),
		Term:       "long",
	}}
	if err := SaveDispositionsCSV(path, rows, "USD"); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if want := "asset,quantity,disposition_date,acquisition_date,proceeds_USD,cost_basis_USD,capital_gain_USD,term"; lines[0] != want {
		t.Errorf("header = %q", lines[0])
	}
	if want := "ETH,1.50000000,2021-01-01T00:00:00.000Z,2020-01-01T00:00:00.000Z,1100.00000000,200.00000000,900.00000000,long"; lines[1] != want {
		t.Errorf("row = %q", lines[1])
	}
}
