// Package cmd implements the CLI application that turns raw asset
// movement exports into linked transaction groups and capital gains
// reports.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&linkCmd{}, "pipeline")
	c.Register(&gainsCmd{}, "pipeline")
	c.Register(&checkCmd{}, "pipeline")

	c.Register(&fetchPricesCmd{}, "prices")
}

// as a CLI application, it has a very short lived lifecycle, so one
// process-wide logger is fine.

// newLogger builds the run logger. Verbose enables the per-delta debug
// output of the linker and ledger.
func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		return zap.NewNop()
	}
	return log
}

// printMarkdown renders markdown to the terminal, falling back to the raw
// text when rendering fails.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Println(md)
		return
	}
	fmt.Print(out)
}

// parseDate accepts a day or an RFC3339 instant and returns ms since
// epoch.
func parseDate(s string) (int64, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("cannot parse date %q (want 2006-01-02 or RFC3339)", s)
	}
	return t.UnixMilli(), nil
}
