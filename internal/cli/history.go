package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/usecase"

	"github.com/google/subcommands"
)

type historyCmd struct {
	engineFlags
	interval string
	rng      string
	last     int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print a close series for one ticker" }
func (*historyCmd) Usage() string {
	return `pulsectl history [-interval 1d] [-range 6mo] [-n 20] <ticker>

  Fetches historical closes and prints the most recent points.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	c.setEngineFlags(f)
	f.StringVar(&c.interval, "interval", usecase.DefaultInterval, "bar interval (1m, 5m, 1h, 1d, 1wk, 1mo)")
	f.StringVar(&c.rng, "range", usecase.DefaultRange, "lookback range (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, max)")
	f.IntVar(&c.last, "n", 20, "points to print, 0 for all")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one ticker is required")
		return subcommands.ExitUsageError
	}
	t, err := models.NormalizeTicker(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if !usecase.ValidWindow(c.interval, c.rng) {
		fmt.Fprintf(os.Stderr, "Error: unsupported window %s/%s\n", c.interval, c.rng)
		return subcommands.ExitUsageError
	}

	eng, status := c.engine()
	if eng == nil {
		return status
	}
	o := eng.Fetcher.FetchHistories(ctx, []models.Ticker{t}, c.interval, c.rng)[t]
	if c.jsonOut {
		return writeJSON(o)
	}
	if !o.Usable() || o.Series == nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %s %s\n", t, o.Reason, o.Detail)
		return subcommands.ExitFailure
	}
	renderSeries(stdout, o, c.last)
	return subcommands.ExitSuccess
}
