package tax

import "testing"

func TestTaxTicker(t *testing.T) {
	tests := []struct {
		asset, want string
	}{
		{"WETH", "ETH"},
		{"WBTC", "BTC"},
		{"REPv2", "REP"},
		{"USDC.ARBITRUM", "USDC"},
		{"USDC.OPTIMISM", "USDC"},
		{"USDC.BASE", "USDC"},
		{"ETH", "ETH"},
		{"USDC", "USDC"},
		{"LINK", "LINK"},
	}
	for _, tc := range tests {
		if got := TaxTicker(tc.asset); got != tc.want {
			t.Errorf("TaxTicker(%q) = %q, want %q", tc.asset, got, tc.want)
		}
	}
}

func TestInventorySymbol(t *testing.T) {
	d := testDelta(1, In, Swap, "WETH", 1, Mainnet, "a", "x")
	if got := InventorySymbol(d); got != "ETH" {
		t.Errorf("fungible = %q, want ETH", got)
	}

	// positions are non-fungible and keep their synthetic id
	d.Asset = "UNI-V3-LIQUIDITY:42_ETH_USDC_3000_-100_100"
	if got := InventorySymbol(d); got != d.Asset {
		t.Errorf("position = %q, want untouched id", got)
	}
}

func TestPriceAssets(t *testing.T) {
	// WETH folds into ETH (already present), pool shares drop out, the
	// bridged USDC variants collapse into one entry
	got := PriceAssets([]string{"ETH", "WETH", "LINK", "UNI-V1:ZRX", "USDC.BASE", "USDC", "USDC.ARBITRUM"})
	want := []string{"ETH", "LINK", "USDC"}
	if len(got) != len(want) {
		t.Fatalf("PriceAssets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PriceAssets()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPriceAssetsFoldsLoneAlias(t *testing.T) {
	// a run holding only WETH still needs the canonical ETH history
	got := PriceAssets([]string{"WETH"})
	if len(got) != 1 || got[0] != "ETH" {
		t.Errorf("PriceAssets() = %v, want [ETH]", got)
	}
}

func TestRequiresPrice(t *testing.T) {
	for _, asset := range []string{"WETH", "WBTC", "REPv2", "USDC.BASE", "UNI-V1:ZRX", "UNI-V1:REP"} {
		if RequiresPrice(asset) {
			t.Errorf("RequiresPrice(%q) = true, want false", asset)
		}
	}
	for _, asset := range []string{"ETH", "BTC", "USDC", "LINK"} {
		if !RequiresPrice(asset) {
			t.Errorf("RequiresPrice(%q) = false, want true", asset)
		}
	}
}
