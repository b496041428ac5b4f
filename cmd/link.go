package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dannycoleman4/tax"
	"github.com/google/subcommands"
)

// linkCmd holds the flags for the 'link' subcommand.
type linkCmd struct {
	deltasFile string
	outFile    string
	verbose    bool
}

func (*linkCmd) Name() string     { return "link" }
func (*linkCmd) Synopsis() string { return "group raw deltas into linked transactions" }
func (*linkCmd) Usage() string {
	return `taxcalc link -i <deltas.json> -o <linked.json> [-v]

  Groups every In and Out delta into transaction groups and reports what
  could not be linked.
`
}

func (c *linkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.deltasFile, "i", "deltas.json", "Raw deltas file (JSON)")
	f.StringVar(&c.outFile, "o", "linked.json", "Output file for the linked groups")
	f.BoolVar(&c.verbose, "v", false, "Log every unmatched delta")
}

func (c *linkCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := newLogger(c.verbose)
	defer log.Sync()

	deltas, err := tax.LoadDeltas(c.deltasFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading deltas: %v\n", err)
		return subcommands.ExitFailure
	}

	linked, err := tax.NewLinker(log).Link(deltas)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error linking: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := linked.Save(c.outFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving linked groups: %v\n", err)
		return subcommands.ExitFailure
	}

	printMarkdown(linksMarkdown(linked, c.outFile))
	return subcommands.ExitSuccess
}

func linksMarkdown(linked tax.LinkedDeltas, outFile string) string {
	links := linked.DispositionLinks()

	var b strings.Builder
	fmt.Fprintf(&b, "# Linking report\n\n")
	fmt.Fprintf(&b, "- groups: %d\n", len(linked))
	fmt.Fprintf(&b, "- linked outs: %d\n", links.Linked)
	fmt.Fprintf(&b, "- standalone outs: %d\n", links.Unlinked)
	fmt.Fprintf(&b, "- venues: %s\n", strings.Join(venueSlugs(linked), ", "))
	fmt.Fprintf(&b, "- written to: %s\n", outFile)

	if len(links.UnlinkedQty) > 0 {
		fmt.Fprintf(&b, "\n## Standalone quantity by asset\n\n")
		fmt.Fprintf(&b, "| asset | qty |\n|---|---|\n")
		assets := make([]string, 0, len(links.UnlinkedQty))
		for a := range links.UnlinkedQty {
			assets = append(assets, a)
		}
		sort.Strings(assets)
		for _, a := range assets {
			fmt.Fprintf(&b, "| %s | %s |\n", a, links.UnlinkedQty[a])
		}
	}
	if len(links.UnlinkedKinds) > 0 {
		kinds := make([]string, 0, len(links.UnlinkedKinds))
		for k := range links.UnlinkedKinds {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "\nStandalone kinds: %s\n", strings.Join(kinds, ", "))
	}
	return b.String()
}

// venueSlugs lists the distinct venues appearing in the linked set,
// collapsed to their report slugs, sorted.
func venueSlugs(linked tax.LinkedDeltas) []string {
	seen := make(map[string]struct{})
	for i := range linked {
		for d := range linked[i].All() {
			seen[d.Host.Slug()] = struct{}{}
		}
	}
	slugs := make([]string, 0, len(seen))
	for s := range seen {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}
