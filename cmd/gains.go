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

// gainsCmd holds the flags for the 'gains' subcommand.
type gainsCmd struct {
	linkedFile  string
	pricesFile  string
	openFile    string
	closeFile   string
	method      string
	currency    string
	csvFile     string
	summaryFile string
	verbose     bool
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "replay linked groups and realize capital gains" }
func (*gainsCmd) Usage() string {
	return `taxcalc gains -i <linked.json> -prices <prices.json> [-open <inventory.json>] -close <inventory.json> [-method <method>] [-c <currency>] [-csv <file>] [-summary <file>] [-v]

  Replays the linked transaction groups against the opening inventory,
  realizing income and capital gains per the chosen inventory method
  (FIFO, LIFO, Specific_Id or average).
`
}

func (c *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.linkedFile, "i", "linked.json", "Linked groups file")
	f.StringVar(&c.pricesFile, "prices", "prices.json", "Price oracle file")
	f.StringVar(&c.openFile, "open", "", "Opening inventory file; empty starts from nothing")
	f.StringVar(&c.closeFile, "close", "inventory.json", "Output file for the closing inventory")
	f.StringVar(&c.method, "method", string(tax.Fifo), "Inventory method (FIFO, LIFO, Specific_Id, average)")
	f.StringVar(&c.currency, "c", "USD", "Quote currency")
	f.StringVar(&c.csvFile, "csv", "", "Optional dispositions CSV output file")
	f.StringVar(&c.summaryFile, "summary", "", "Optional summary JSON output file")
	f.BoolVar(&c.verbose, "v", false, "Log every deficit and dust event")
}

func (c *gainsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := newLogger(c.verbose)
	defer log.Sync()

	linked, err := tax.LoadLinkedDeltas(c.linkedFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading linked groups: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := linked.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error validating linked groups: %v\n", err)
		return subcommands.ExitFailure
	}
	prices, err := tax.LoadPrices(c.pricesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading prices: %v\n", err)
		return subcommands.ExitFailure
	}

	ledger := tax.NewLedger(log)
	if c.method == "average" {
		return c.averageGains(ledger, linked, prices)
	}

	method, err := tax.ParseMethod(c.method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	inv := tax.Inventory{}
	if c.openFile != "" {
		if inv, err = tax.LoadInventory(c.openFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading opening inventory: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	summary, dispositions, err := ledger.Apply(inv, linked, c.currency, prices, method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying groups: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := inv.Save(c.closeFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving closing inventory: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.csvFile != "" {
		if err := tax.SaveDispositionsCSV(c.csvFile, dispositions, c.currency); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving dispositions: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	if c.summaryFile != "" {
		if err := summary.Save(c.summaryFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving summary: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	printMarkdown(summaryMarkdown(summary, len(dispositions)))
	return subcommands.ExitSuccess
}

func (c *gainsCmd) averageGains(ledger *tax.Ledger, linked tax.LinkedDeltas, prices *tax.Prices) subcommands.ExitStatus {
	inv := tax.ConsolidatedInventory{}
	if c.openFile != "" {
		var err error
		if inv, err = tax.LoadConsolidatedInventory(c.openFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading opening inventory: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	summary, dispositions, err := ledger.ApplyConsolidated(inv, linked, c.currency, prices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying groups: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := inv.Save(c.closeFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving closing inventory: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.csvFile != "" {
		if err := tax.SaveConsolidatedDispositionsCSV(c.csvFile, dispositions, c.currency); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving dispositions: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	if c.summaryFile != "" {
		if err := summary.Save(c.summaryFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving summary: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Capital gains (average cost)\n\n")
	fmt.Fprintf(&b, "| metric | amount |\n|---|---|\n")
	fmt.Fprintf(&b, "| income | %s |\n", summary.Income)
	fmt.Fprintf(&b, "| capital gains | %s |\n", summary.CapitalGains)
	fmt.Fprintf(&b, "\n%d dispositions realized.\n", len(dispositions))
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}

func summaryMarkdown(s tax.Summary, dispositions int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Capital gains (%s)\n\n", s.InventoryMethod)
	fmt.Fprintf(&b, "| metric | amount |\n|---|---|\n")
	fmt.Fprintf(&b, "| income | %s |\n", s.Income)
	fmt.Fprintf(&b, "| short term gains | %s |\n", s.ShortTermCapitalGains.SignedString())
	fmt.Fprintf(&b, "| long term gains | %s |\n", s.LongTermCapitalGains.SignedString())
	fmt.Fprintf(&b, "\n%d dispositions realized.\n", dispositions)
	return b.String()
}
