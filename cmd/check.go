package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dannycoleman4/tax"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// checkCmd holds the flags for the 'check' subcommand.
type checkCmd struct {
	inventoryFile string
	balancesFile  string
	epsilon       string
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "compare an inventory against reported balances" }
func (*checkCmd) Usage() string {
	return `taxcalc check -i <inventory.json> -balances <balances.json> [-epsilon <tolerance>]

  Verifies that the inventory's per-asset totals match externally reported
  closing balances, within tolerance. A mismatch means deltas are missing
  or double-counted.
`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inventoryFile, "i", "inventory.json", "Inventory file")
	f.StringVar(&c.balancesFile, "balances", "balances.json", "Reported balances file (JSON object of asset to quantity)")
	f.StringVar(&c.epsilon, "epsilon", "0.000000001", "Allowed per-asset difference")
}

func (c *checkCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	inv, err := tax.LoadInventory(c.inventoryFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading inventory: %v\n", err)
		return subcommands.ExitFailure
	}
	balances, err := tax.LoadBalances(c.balancesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading balances: %v\n", err)
		return subcommands.ExitFailure
	}
	epsilon, err := decimal.NewFromString(c.epsilon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing epsilon: %v\n", err)
		return subcommands.ExitUsageError
	}

	if err := inv.CheckBalances(balances, epsilon); err != nil {
		fmt.Fprintf(os.Stderr, "Balance check failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("All %d reported balances match within %s.\n", len(balances), epsilon)
	return subcommands.ExitSuccess
}
