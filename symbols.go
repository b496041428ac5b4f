package tax

// Wrapped and migrated tokens are economically the same asset for tax
// purposes: WETH lots and ETH lots belong to one pool, and bridged USDC
// variants share the USDC basis. The canonicalization here folds those
// aliases; everything else passes through unchanged.

var taxTickerAliases = map[string]string{
	"WETH":          "ETH",
	"WBTC":          "BTC",
	"REPv2":         "REP",
	"USDC.ARBITRUM": "USDC",
	"USDC.OPTIMISM": "USDC",
	"USDC.BASE":     "USDC",
}

// TaxTicker maps an on-chain asset id to the canonical symbol used for
// pricing and basis tracking.
func TaxTicker(asset string) string {
	if canonical, ok := taxTickerAliases[asset]; ok {
		return canonical
	}
	return asset
}

// InventorySymbol returns the key a delta's lots are tracked under.
// Liquidity positions keep their full synthetic id: each position is its own
// non-fungible inventory entry.
func InventorySymbol(d Delta) string {
	if IsLiquidityPosition(d.Asset) {
		return d.Asset
	}
	return TaxTicker(d.Asset)
}

// PriceAssets folds a raw asset list into the distinct canonical tickers
// that need a price history, in first-seen order. Aliases collapse into
// their canonical symbol and assets valued through other means drop out,
// so the result is exactly the set of histories a run will look up.
func PriceAssets(assets []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, a := range assets {
		sym := TaxTicker(a)
		if !RequiresPrice(sym) {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// RequiresPrice reports whether an asset needs its own price history.
// Aliased assets are priced through their canonical symbol, and the UNI-V1
// pool-share tokens were always valued through their underlying legs.
func RequiresPrice(asset string) bool {
	switch asset {
	case "WETH", "WBTC", "REPv2", "USDC.ARBITRUM", "USDC.OPTIMISM", "USDC.BASE",
		"UNI-V1:ZRX", "UNI-V1:REP":
		return false
	}
	return true
}
