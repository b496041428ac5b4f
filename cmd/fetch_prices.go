package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dannycoleman4/tax"
	"github.com/google/subcommands"
)

// fetchPricesCmd holds the flags for the 'fetch-prices' subcommand.
type fetchPricesCmd struct {
	deltasFile string
	assets     string
	currency   string
	start      string
	end        string
	patchFile  string
	outFile    string
}

func (*fetchPricesCmd) Name() string     { return "fetch-prices" }
func (*fetchPricesCmd) Synopsis() string { return "backfill daily prices from cryptocompare" }
func (*fetchPricesCmd) Usage() string {
	return `taxcalc fetch-prices [-i <deltas.json> | -assets <BTC,ETH,...>] -s <date> -e <date> [-c <currency>] [-patch <prices.json>] -o <prices.json>

  Fetches daily prices for the named assets (or every priced asset used
  by the deltas file) over [start, end). With -patch, the fetched days
  only fill gaps in an existing oracle; without it they become a new one.
`
}

func (c *fetchPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.deltasFile, "i", "", "Deltas file to derive the asset list from")
	f.StringVar(&c.assets, "assets", "", "Comma-separated asset list, overrides -i")
	f.StringVar(&c.currency, "c", "USD", "Quote currency")
	f.StringVar(&c.start, "s", "", "Inclusive start date")
	f.StringVar(&c.end, "e", "", "Exclusive end date")
	f.StringVar(&c.patchFile, "patch", "", "Existing oracle whose gaps the fetched days fill")
	f.StringVar(&c.outFile, "o", "prices.json", "Output file")
}

func (c *fetchPricesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	startMS, err := parseDate(c.start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -s: %v\n", err)
		return subcommands.ExitUsageError
	}
	endMS, err := parseDate(c.end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -e: %v\n", err)
		return subcommands.ExitUsageError
	}

	var assets []string
	switch {
	case c.assets != "":
		for _, a := range strings.Split(c.assets, ",") {
			assets = append(assets, strings.TrimSpace(a))
		}
	case c.deltasFile != "":
		deltas, err := tax.LoadDeltas(c.deltasFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading deltas: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, a := range tax.PriceAssets(deltas.UsedAssets()) {
			if a != c.currency {
				assets = append(assets, a)
			}
		}
	default:
		fmt.Fprintln(os.Stderr, "one of -assets or -i is required")
		return subcommands.ExitUsageError
	}

	fetched, err := tax.FetchDayPrices(c.currency, assets, startMS, endMS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching prices: %v\n", err)
		return subcommands.ExitFailure
	}

	out := fetched
	if c.patchFile != "" {
		existing, err := tax.LoadPrices(c.patchFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading oracle to patch: %v\n", err)
			return subcommands.ExitFailure
		}
		existing.Patch(fetched, startMS, endMS)
		out = existing
	}

	if err := out.Save(c.outFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving prices: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Saved prices for %d assets to %s\n", len(out.Map), c.outFile)
	return subcommands.ExitSuccess
}
