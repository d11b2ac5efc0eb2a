package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"PortfolioPulse/internal/domain/models"

	"github.com/google/subcommands"
)

type quoteCmd struct {
	engineFlags
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "print current quotes for tickers" }
func (*quoteCmd) Usage() string {
	return `pulsectl quote [-config <file>] [-json] <ticker>...

  Fetches current quotes through the engine cache and fallback chain. Every
  ticker gets a line, failed ones with their reason.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) { c.setEngineFlags(f) }

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one ticker is required")
		return subcommands.ExitUsageError
	}
	tickers, invalid := models.ParseTickers(f.Args())
	for _, raw := range invalid {
		fmt.Fprintf(os.Stderr, "Warning: skipping malformed ticker %q\n", raw)
	}
	if len(tickers) == 0 {
		return subcommands.ExitUsageError
	}

	eng, status := c.engine()
	if eng == nil {
		return status
	}
	outcomes := eng.Fetcher.FetchQuotes(ctx, tickers)
	if c.jsonOut {
		return writeJSON(ordered(tickers, outcomes))
	}
	renderQuotes(stdout, tickers, outcomes)
	return exitFor(tickers, outcomes)
}

func ordered(tickers []models.Ticker, outcomes map[models.Ticker]models.FetchOutcome) []models.FetchOutcome {
	out := make([]models.FetchOutcome, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, outcomes[t])
	}
	return out
}

// exitFor fails the command only when no ticker produced a usable value.
func exitFor(tickers []models.Ticker, outcomes map[models.Ticker]models.FetchOutcome) subcommands.ExitStatus {
	for _, t := range tickers {
		if outcomes[t].Usable() {
			return subcommands.ExitSuccess
		}
	}
	return subcommands.ExitFailure
}
