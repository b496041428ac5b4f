package tax

import "testing"

func TestHostSlug(t *testing.T) {
	tests := []struct {
		host Host
		want string
	}{
		{Optimism10, "optimism"},
		{Optimism20, "optimism"},
		{CoinbaseDotcom, "coinbase"},
		{Coinbase, "coinbase"},
		{CoinbasePro, "coinbase_pro"},
		{ArbitrumOne, "arbitrum_one"},
		{DydxSoloMargin, "dydx_solo_margin"},
		{Mainnet, "mainnet"},
		{Kucoin, "kucoin"},
	}
	for _, tc := range tests {
		if got := tc.host.Slug(); got != tc.want {
			t.Errorf("Slug(%s) = %q, want %q", tc.host, got, tc.want)
		}
	}
}
