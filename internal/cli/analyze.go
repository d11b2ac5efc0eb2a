package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/usecase"
	"PortfolioPulse/pkg/util"

	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"
)

type analyzeCmd struct {
	engineFlags
	file string
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "run a full analysis pass over a portfolio file" }
func (*analyzeCmd) Usage() string {
	return `pulsectl analyze -f <portfolio.yaml> [-config <file>] [-json]

  Loads positions from a YAML file, fetches quotes and history, and prints
  portfolio metrics followed by recommendations.

  portfolio file:
    benchmark: ^GSPC
    positions:
      - ticker: AAPL
        quantity: 10
        cost_basis: 150
        asset_type: stock
        purchase_date: 2023-01-05
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	c.setEngineFlags(f)
	f.StringVar(&c.file, "f", "", "portfolio YAML file")
}

func (c *analyzeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		fmt.Fprintln(os.Stderr, "Error: -f is required")
		return subcommands.ExitUsageError
	}
	b, err := os.ReadFile(c.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not read portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	req, err := parsePortfolio(b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	eng, status := c.engine()
	if eng == nil {
		return status
	}
	run, err := eng.Analyzer.Analyze(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: analysis failed: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.jsonOut {
		return writeJSON(run)
	}
	renderRun(stdout, run)
	return subcommands.ExitSuccess
}

type portfolioFile struct {
	Benchmark string         `yaml:"benchmark"`
	Interval  string         `yaml:"interval"`
	Range     string         `yaml:"range"`
	Positions []positionLine `yaml:"positions"`
}

type positionLine struct {
	Ticker       string  `yaml:"ticker"`
	Quantity     float64 `yaml:"quantity"`
	CostBasis    float64 `yaml:"cost_basis"`
	AssetType    string  `yaml:"asset_type"`
	PurchaseDate string  `yaml:"purchase_date"`
}

// parsePortfolio decodes and checks a portfolio file. Every bad line is
// reported, not only the first.
func parsePortfolio(b []byte) (models.AnalysisRequest, error) {
	var pf portfolioFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("parse portfolio: %w", err)
	}
	if len(pf.Positions) == 0 {
		return models.AnalysisRequest{}, usecase.ErrNoPositions
	}

	req := models.AnalysisRequest{Interval: pf.Interval, Range: pf.Range}
	var problems []string
	if pf.Benchmark != "" {
		t, err := models.NormalizeTicker(pf.Benchmark)
		if err != nil {
			problems = append(problems, "benchmark: "+err.Error())
		}
		req.Benchmark = t
	}
	if !usecase.ValidWindow(pf.Interval, pf.Range) {
		problems = append(problems, fmt.Sprintf("unsupported window %s/%s", pf.Interval, pf.Range))
	}
	for i, p := range pf.Positions {
		t, err := models.NormalizeTicker(p.Ticker)
		if err != nil {
			problems = append(problems, fmt.Sprintf("positions[%d]: %v", i, err))
			continue
		}
		if p.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("positions[%d]: quantity must be positive", i))
			continue
		}
		pos := models.Position{Ticker: t, Quantity: p.Quantity, CostBasis: p.CostBasis, AssetType: models.AssetStock}
		if strings.TrimSpace(p.AssetType) != "" {
			pos.AssetType = models.NormalizeAssetType(p.AssetType)
		}
		if ts, ok := util.ParseTime(p.PurchaseDate); ok {
			pos.PurchaseDate = ts
		}
		req.Positions = append(req.Positions, pos)
	}
	if len(problems) > 0 {
		return models.AnalysisRequest{}, fmt.Errorf("invalid portfolio:\n  %s", strings.Join(problems, "\n  "))
	}
	return req, nil
}
