package cli

import (
	"bytes"
	"context"
	"flag"
	"strings"
	"testing"
	"time"

	"PortfolioPulse/internal/di"
	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	icache "PortfolioPulse/internal/service/cache"
	"PortfolioPulse/internal/usecase"

	"github.com/google/subcommands"
)

type tableProvider struct {
	prices map[models.Ticker]float64
}

func (p *tableProvider) Name() string { return "table" }

func (p *tableProvider) FetchQuote(_ context.Context, t models.Ticker) models.FetchOutcome {
	price, ok := p.prices[t]
	if !ok {
		return models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "unknown symbol")
	}
	return models.QuoteSuccess(models.Quote{
		Ticker: t, Price: price, Currency: "USD", PreviousClose: price / 1.02,
		AsOf: time.Date(2024, 5, 2, 15, 30, 0, 0, time.UTC),
	})
}

func (p *tableProvider) FetchQuotesBatch(ctx context.Context, ts []models.Ticker) map[models.Ticker]models.FetchOutcome {
	out := make(map[models.Ticker]models.FetchOutcome, len(ts))
	for _, t := range ts {
		out[t] = p.FetchQuote(ctx, t)
	}
	return out
}

func (p *tableProvider) FetchHistory(_ context.Context, t models.Ticker, _, _ string) models.FetchOutcome {
	return models.Failure(t, models.KindHistory, models.ReasonNoData, "no history")
}

func stubEngine(t *testing.T, prices map[models.Ticker]float64) {
	t.Helper()
	f, err := usecase.NewFetcher(&tableProvider{prices: prices}, icache.NewPriceCache(), usecase.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	prevBoot, prevOut := boot, stdout
	boot = func(string) (*di.Engine, error) { return &di.Engine{Fetcher: f}, nil }
	t.Cleanup(func() { boot, stdout = prevBoot, prevOut })
}

func execute(t *testing.T, cmd subcommands.Command, args ...string) (subcommands.ExitStatus, string) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd.Execute(context.Background(), fs), buf.String()
}

func TestQuoteCommand(t *testing.T) {
	stubEngine(t, map[models.Ticker]float64{"AAPL": 187.5})

	status, out := execute(t, &quoteCmd{}, "aapl", "ZZZZ")
	if status != subcommands.ExitSuccess {
		t.Fatalf("status = %v", status)
	}
	for _, want := range []string{"AAPL", "$187.50", "+2.00%", "ZZZZ", "invalidTicker"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	status, _ = execute(t, &quoteCmd{}, "ZZZZ")
	if status != subcommands.ExitFailure {
		t.Fatalf("all-failed status = %v, want failure", status)
	}

	status, _ = execute(t, &quoteCmd{})
	if status != subcommands.ExitUsageError {
		t.Fatalf("no-args status = %v", status)
	}
}

func TestQuoteCommandJSON(t *testing.T) {
	stubEngine(t, map[models.Ticker]float64{"MSFT": 410})

	status, out := execute(t, &quoteCmd{}, "-json", "MSFT")
	if status != subcommands.ExitSuccess {
		t.Fatalf("status = %v", status)
	}
	if !strings.Contains(out, `"ticker": "MSFT"`) || !strings.Contains(out, `"price": 410`) {
		t.Fatalf("json output:\n%s", out)
	}
}

func TestHistoryCommandRejectsBadWindow(t *testing.T) {
	stubEngine(t, nil)
	if status, _ := execute(t, &historyCmd{}, "-interval", "7d", "AAPL"); status != subcommands.ExitUsageError {
		t.Fatalf("status = %v", status)
	}
	if status, _ := execute(t, &historyCmd{}, "AAPL"); status != subcommands.ExitFailure {
		t.Fatalf("no-data status = %v", status)
	}
}

func TestParsePortfolio(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, req models.AnalysisRequest)
	}{
		{
			name: "valid",
			yaml: `
benchmark: spy
positions:
  - ticker: aapl
    quantity: 10
    cost_basis: 150
    purchase_date: 2023-01-05
  - ticker: BND
    quantity: 5
    cost_basis: 72
    asset_type: Bond
`,
			check: func(t *testing.T, req models.AnalysisRequest) {
				if req.Benchmark != "SPY" || len(req.Positions) != 2 {
					t.Fatalf("req = %+v", req)
				}
				p := req.Positions[0]
				if p.Ticker != "AAPL" || p.AssetType != models.AssetStock || p.PurchaseDate.Year() != 2023 {
					t.Fatalf("first position = %+v", p)
				}
				if req.Positions[1].AssetType != models.AssetBond {
					t.Fatalf("asset type = %q", req.Positions[1].AssetType)
				}
			},
		},
		{name: "empty", yaml: "positions: []\n", wantErr: "no positions"},
		{name: "bad window", yaml: "interval: 7d\npositions:\n  - {ticker: AAPL, quantity: 1}\n", wantErr: "unsupported window"},
		{
			name:    "every bad line reported",
			yaml:    "positions:\n  - {ticker: 'bad ticker', quantity: 1}\n  - {ticker: MSFT, quantity: 0}\n",
			wantErr: "positions[1]: quantity",
		},
		{name: "not yaml", yaml: "positions: [", wantErr: "parse portfolio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parsePortfolio([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePortfolio: %v", err)
			}
			tt.check(t, req)
		})
	}
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	renderRuns(&buf, nil)
	if !strings.Contains(buf.String(), "no runs recorded") {
		t.Fatalf("empty output = %q", buf.String())
	}

	buf.Reset()
	renderRuns(&buf, []drepo.RunSummary{{
		ID: "r1", StartedAt: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		Positions: 3, TotalValue: 1234.5, Recommendations: 2, Tags: []string{"overbought"},
	}})
	out := buf.String()
	if !strings.Contains(out, "r1") || !strings.Contains(out, "1234.50") || !strings.Contains(out, "[overbought]") {
		t.Fatalf("output:\n%s", out)
	}
}
