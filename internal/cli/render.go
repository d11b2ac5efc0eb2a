package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"
)

const timeLayout = "2006-01-02 15:04"

func writeJSON(v interface{}) subcommands.ExitStatus {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func amount(v float64, currency string) string {
	if currency == "" {
		currency = money.USD
	}
	return money.NewFromFloat(v, currency).Display()
}

func opt(o models.Optional, format string) string {
	v, ok := o.Get()
	if !ok {
		return "-"
	}
	return fmt.Sprintf(format, v)
}

func renderQuotes(w io.Writer, tickers []models.Ticker, outcomes map[models.Ticker]models.FetchOutcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tPRICE\tCHANGE\tAS OF\tSTATUS")
	for _, t := range tickers {
		o := outcomes[t]
		if !o.Usable() || o.Quote == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s (%s)\n", t, o.Status, o.Reason)
			continue
		}
		q := o.Quote
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t, amount(q.Price, q.Currency), opt(q.ChangePct(), "%+.2f%%"), q.AsOf.Format(timeLayout), o.Status)
	}
	tw.Flush()
}

func renderSeries(w io.Writer, o models.FetchOutcome, last int) {
	pts := o.Series.Points
	if last > 0 && len(pts) > last {
		pts = pts[len(pts)-last:]
	}
	fmt.Fprintf(w, "%s %s/%s, %d of %d points (%s)\n",
		o.Ticker, o.Series.Interval, o.Series.Range, len(pts), len(o.Series.Points), o.Status)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCLOSE\tVOLUME")
	for _, p := range pts {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\n", p.Time.Format(timeLayout), amount(p.Close, o.Series.Currency), p.Volume)
	}
	tw.Flush()
}

func renderRun(w io.Writer, run *models.AnalysisRun) {
	p := run.Metrics.Portfolio
	ccy := runCurrency(run)
	fmt.Fprintf(w, "run %s, %d positions (%d priced), benchmark %s\n", run.ID, p.Positions, p.Priced, run.Benchmark)
	fmt.Fprintf(w, "value %s  cost %s  P/L %s (%s)\n",
		amount(p.TotalValue, ccy), amount(p.TotalCost, ccy), optAmount(p.TotalPL, ccy), opt(p.TotalPLPct, "%+.2f%%"))
	fmt.Fprintf(w, "beta %s  alpha %s  volatility %s  sharpe %s  VaR95 %s\n\n",
		opt(p.Beta, "%.2f"), opt(p.Alpha, "%.4f"), opt(p.Volatility, "%.4f"), opt(p.Sharpe, "%.2f"), opt(p.VaR95, "%.4f"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tTYPE\tVALUE\tWEIGHT\tP/L%\tBETA\tRSI")
	for _, t := range run.Metrics.Order {
		m := run.Metrics.PerPosition[t]
		stale := ""
		if m.Stale {
			stale = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t, stale, m.AssetType,
			optAmount(m.MarketValue, ccy), opt(m.WeightPct, "%.1f%%"), opt(m.PLPct, "%+.2f%%"), opt(m.Beta, "%.2f"), opt(m.RSI, "%.1f"))
	}
	tw.Flush()

	if len(run.Recommendations) > 0 {
		fmt.Fprintln(w, "\nrecommendations:")
		for _, r := range run.Recommendations {
			fmt.Fprintf(w, "  [%s] %s\n", r.Severity, r.Message)
		}
	}
	if len(run.Rebalancing) > 0 {
		fmt.Fprintln(w, "\nrebalancing:")
		for _, s := range run.Rebalancing {
			fmt.Fprintf(w, "  %s\n", s.Message)
		}
	}
	for _, o := range run.Warnings() {
		fmt.Fprintf(w, "warning: %s quote %s %s\n", o.Ticker, o.Status, o.Reason)
	}
}

// runCurrency takes the currency of the first priced quote.
func runCurrency(run *models.AnalysisRun) string {
	for _, t := range run.Metrics.Order {
		if o, ok := run.Quotes[t]; ok && o.Quote != nil && o.Quote.Currency != "" {
			return o.Quote.Currency
		}
	}
	return money.USD
}

func optAmount(o models.Optional, currency string) string {
	v, ok := o.Get()
	if !ok {
		return "-"
	}
	return amount(v, currency)
}

func renderRuns(w io.Writer, runs []drepo.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPOSITIONS\tVALUE\tEXCLUDED\tADVICE\tTAGS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%d\t%d\t%v\n",
			r.ID, r.StartedAt.Format(timeLayout), r.Positions, r.TotalValue, r.Excluded, r.Recommendations, r.Tags)
	}
	tw.Flush()
}
