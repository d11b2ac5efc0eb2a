package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/domain/service"
	"PortfolioPulse/internal/services/features"
	"PortfolioPulse/pkg/logger"
	"PortfolioPulse/pkg/util"
)

// Defaults for Analyzer requests that leave fields empty.
const (
	DefaultBenchmark = "^GSPC"
	DefaultInterval  = "1d"
	DefaultRange     = "6mo"
)

// ErrNoPositions is returned for an empty portfolio.
var ErrNoPositions = errors.New("portfolio has no positions")

// Analyzer runs one full pass: fetch, compute, advise, then fan the run out
// to the archive, publisher and recorder. Sink failures are logged and never
// fail the run.
type Analyzer struct {
	fetcher service.QuoteFetcher
	engine  service.MetricsEngine
	advisor service.Advisor

	archive   drepo.HistoryArchive
	publisher drepo.RunPublisher
	recorder  drepo.RunRecorder
	metrics   drepo.Metrics
	log       *logger.Logger

	benchmark models.Ticker
	interval  string
	rng       string
	riskFree  float64
	now       func() time.Time
	newID     func() string
}

type AnalyzerOption func(*Analyzer)

func WithArchive(a drepo.HistoryArchive) AnalyzerOption {
	return func(z *Analyzer) { z.archive = a }
}

func WithPublisher(p drepo.RunPublisher) AnalyzerOption {
	return func(z *Analyzer) { z.publisher = p }
}

func WithRecorder(r drepo.RunRecorder) AnalyzerOption {
	return func(z *Analyzer) { z.recorder = r }
}

func WithAnalyzerMetrics(m drepo.Metrics) AnalyzerOption {
	return func(z *Analyzer) { z.metrics = m }
}

func WithAnalyzerLogger(l *logger.Logger) AnalyzerOption {
	return func(z *Analyzer) { z.log = l }
}

// WithHistoryDefaults sets the benchmark and series window used when a
// request leaves them empty.
func WithHistoryDefaults(benchmark models.Ticker, interval, rng string) AnalyzerOption {
	return func(z *Analyzer) {
		if benchmark != "" {
			z.benchmark = benchmark
		}
		if interval != "" {
			z.interval = interval
		}
		if rng != "" {
			z.rng = rng
		}
	}
}

// WithRiskFreeRate sets the annual risk-free rate as a fraction.
func WithRiskFreeRate(r float64) AnalyzerOption {
	return func(z *Analyzer) { z.riskFree = r }
}

func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(z *Analyzer) { z.now = now }
}

func WithRunIDs(gen func() string) AnalyzerOption {
	return func(z *Analyzer) { z.newID = gen }
}

func NewAnalyzer(fetcher service.QuoteFetcher, engine service.MetricsEngine, advisor service.Advisor, opts ...AnalyzerOption) *Analyzer {
	z := &Analyzer{
		fetcher:   fetcher,
		engine:    engine,
		advisor:   advisor,
		log:       logger.Nop(),
		benchmark: models.Ticker(DefaultBenchmark),
		interval:  DefaultInterval,
		rng:       DefaultRange,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Analyze runs a pass for req. The only error is a request that cannot be
// analyzed at all; external failures show up as outcomes and exclusions.
func (z *Analyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisRun, error) {
	if len(req.Positions) == 0 {
		return nil, ErrNoPositions
	}
	benchmark, interval, rng := z.benchmark, z.interval, z.rng
	if req.Benchmark != "" {
		benchmark = req.Benchmark
	}
	if req.Interval != "" {
		interval = req.Interval
	}
	if req.Range != "" {
		rng = req.Range
	}

	start := z.now()
	run := &models.AnalysisRun{
		ID:        z.newID(),
		StartedAt: start,
		Benchmark: benchmark,
		Interval:  interval,
		Range:     rng,
	}
	log := z.log.With(logger.String("run_id", run.ID))

	tickers := models.Tickers(req.Positions)
	run.Quotes = z.fetcher.FetchQuotes(ctx, tickers)
	run.History = z.fetcher.FetchHistories(ctx, withBenchmark(tickers, benchmark), interval, rng)

	in := snapshot(req.Positions, run.Quotes, run.History, benchmark)
	in.RiskFreeRate = z.riskFree
	in.PeriodsPerYear = features.PeriodsPerYear(interval)
	in.Now = start

	run.Metrics = z.engine.Compute(in)
	run.Metrics.Benchmark = benchmark
	run.Recommendations = z.advisor.Evaluate(run.Metrics)
	run.Rebalancing = z.advisor.SuggestRebalancing(run.Metrics)
	run.Duration = z.now().Sub(start)

	z.archiveSeries(ctx, run, log)
	z.emit(ctx, run, log)

	if z.metrics != nil {
		z.metrics.RecordAnalysis(run.Duration.Seconds(), len(run.Metrics.Order), len(run.Metrics.Exclusions))
	}
	log.Info("analysis complete",
		logger.Int("positions", len(run.Metrics.Order)),
		logger.Int("exclusions", len(run.Metrics.Exclusions)),
		logger.Int("recommendations", len(run.Recommendations)),
		logger.Int("warnings", len(run.Warnings())),
		logger.Duration("took", run.Duration),
	)
	return run, nil
}

// snapshot settles fetch outcomes into the immutable analytics input.
func snapshot(positions []models.Position, quotes, history map[models.Ticker]models.FetchOutcome, benchmark models.Ticker) models.AnalyticsInput {
	in := models.AnalyticsInput{
		Positions:       positions,
		Quotes:          make(map[models.Ticker]models.Quote, len(quotes)),
		StaleQuotes:     make(map[models.Ticker]bool),
		History:         make(map[models.Ticker]*models.HistoricalSeries, len(history)),
		BenchmarkTicker: benchmark,
	}
	for t, o := range quotes {
		if !o.Usable() || o.Quote == nil {
			continue
		}
		in.Quotes[t] = *o.Quote
		if o.Status == models.StatusStale {
			in.StaleQuotes[t] = true
		}
	}
	for t, o := range history {
		if !o.Usable() || o.Series == nil {
			continue
		}
		if t == benchmark {
			in.Benchmark = o.Series
		}
		in.History[t] = o.Series
	}
	return in
}

func withBenchmark(tickers []models.Ticker, benchmark models.Ticker) []models.Ticker {
	out := make([]models.Ticker, 0, len(tickers)+1)
	out = append(out, tickers...)
	for _, t := range tickers {
		if t == benchmark {
			return out
		}
	}
	return append(out, benchmark)
}

// archiveSeries stores freshly fetched series. Stale copies are already in
// the archive from the fetch that produced them.
func (z *Analyzer) archiveSeries(ctx context.Context, run *models.AnalysisRun, log *logger.Logger) {
	if z.archive == nil {
		return
	}
	for t, o := range run.History {
		if !o.OK() || o.Series == nil {
			continue
		}
		if err := z.archive.StoreSeries(ctx, o.Series); err != nil {
			z.sinkError("archive", err, log, logger.String("ticker", t.String()))
		}
	}
}

func (z *Analyzer) emit(ctx context.Context, run *models.AnalysisRun, log *logger.Logger) {
	if z.publisher != nil {
		if err := z.publisher.Publish(ctx, run); err != nil {
			z.sinkError("publish", err, log)
		}
	}
	if z.recorder != nil {
		if err := z.recorder.Record(ctx, run); err != nil {
			z.sinkError("record", err, log)
		}
	}
}

func (z *Analyzer) sinkError(kind string, err error, log *logger.Logger, fields ...logger.Field) {
	if z.metrics != nil {
		z.metrics.RecordError("analysis_" + kind)
	}
	log.Warn("analysis sink failed", append(fields, logger.String("sink", kind), logger.Error(err))...)
}

// ValidWindow reports whether interval and rng are supported by history
// fetches.
func ValidWindow(interval, rng string) bool {
	return (interval == "" || util.ValidInterval(interval)) && (rng == "" || util.ValidRange(rng))
}
