package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/services/analytics"
	"PortfolioPulse/internal/services/recommend"
)

// stubFetcher returns canned outcomes and records what was asked.
type stubFetcher struct {
	mu       sync.Mutex
	quotes   map[models.Ticker]models.FetchOutcome
	series   map[models.Ticker]models.FetchOutcome
	asked    []models.Ticker
	window   [2]string
	quoteReq []models.Ticker
}

func (s *stubFetcher) FetchQuotes(_ context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quoteReq = append(s.quoteReq, tickers...)
	out := make(map[models.Ticker]models.FetchOutcome, len(tickers))
	for _, t := range tickers {
		if o, ok := s.quotes[t]; ok {
			out[t] = o
			continue
		}
		out[t] = models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "unknown")
	}
	return out
}

func (s *stubFetcher) FetchHistories(_ context.Context, tickers []models.Ticker, interval, rng string) map[models.Ticker]models.FetchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, tickers...)
	s.window = [2]string{interval, rng}
	out := make(map[models.Ticker]models.FetchOutcome, len(tickers))
	for _, t := range tickers {
		if o, ok := s.series[t]; ok {
			out[t] = o
			continue
		}
		out[t] = models.Failure(t, models.KindHistory, models.ReasonNoData, "none")
	}
	return out
}

type memArchive struct {
	stored []models.Ticker
}

func (a *memArchive) Init(context.Context) error { return nil }
func (a *memArchive) StoreSeries(_ context.Context, s *models.HistoricalSeries) error {
	a.stored = append(a.stored, s.Ticker)
	return nil
}
func (a *memArchive) LoadSeries(context.Context, models.Ticker, string, time.Time, time.Time) (*models.HistoricalSeries, error) {
	return nil, nil
}
func (a *memArchive) Health(context.Context) error { return nil }
func (a *memArchive) Close() error                 { return nil }

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, *models.AnalysisRun) error {
	p.calls++
	return errors.New("broker down")
}
func (p *failingPublisher) Close() error { return nil }

type memRecorder struct {
	runs []*models.AnalysisRun
}

func (r *memRecorder) Record(_ context.Context, run *models.AnalysisRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *memRecorder) Recent(context.Context, int) ([]drepo.RunSummary, error) { return nil, nil }
func (r *memRecorder) Close() error                                            { return nil }

var _ drepo.RunRecorder = (*memRecorder)(nil)

// fakeMetrics counts errors and analyses; everything else is ignored.
type fakeMetrics struct {
	mu       sync.Mutex
	errors   map[string]int
	analyses int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{errors: map[string]int{}} }

func (m *fakeMetrics) RecordFetch(string, string, string, int) {}
func (m *fakeMetrics) RecordCache(string)                      {}
func (m *fakeMetrics) RecordProviderLatency(string, float64)   {}
func (m *fakeMetrics) RecordLastPrice(string, float64)         {}

func (m *fakeMetrics) RecordAnalysis(float64, int, int) {
	m.mu.Lock()
	m.analyses++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func dailySeries(t models.Ticker, closes []float64) models.FetchOutcome {
	base := time.Date(2026, 1, 5, 21, 0, 0, 0, time.UTC)
	pts := make([]models.Point, len(closes))
	for i, c := range closes {
		pts[i] = models.Point{Time: base.AddDate(0, 0, i), Close: c}
	}
	return models.SeriesSuccess(models.HistoricalSeries{Ticker: t, Interval: "1d", Range: "6mo", Points: pts})
}

func wave(n int, start float64) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		if i%3 == 2 {
			v *= 0.98
		} else {
			v *= 1.015
		}
		out[i] = v
	}
	return out
}

func TestAnalyzerRejectsEmptyPortfolio(t *testing.T) {
	z := NewAnalyzer(&stubFetcher{}, analytics.NewEngine(), recommend.NewEngine())
	if _, err := z.Analyze(context.Background(), models.AnalysisRequest{}); !errors.Is(err, ErrNoPositions) {
		t.Fatalf("expected ErrNoPositions, got %v", err)
	}
}

func TestAnalyzerFullPass(t *testing.T) {
	aapl, msft, spx := models.Ticker("AAPL"), models.Ticker("MSFT"), models.Ticker("^GSPC")
	closes := wave(40, 100)
	f := &stubFetcher{
		quotes: map[models.Ticker]models.FetchOutcome{
			aapl: models.QuoteSuccess(models.Quote{Ticker: aapl, Price: 110, Currency: "USD"}),
			msft: models.Failure(msft, models.KindQuote, models.ReasonRateLimited, "429"),
		},
		series: map[models.Ticker]models.FetchOutcome{
			aapl: dailySeries(aapl, closes),
			spx:  dailySeries(spx, closes),
		},
	}
	archive := &memArchive{}
	pub := &failingPublisher{}
	rec := &memRecorder{}
	m := newFakeMetrics()

	z := NewAnalyzer(f, analytics.NewEngine(), recommend.NewEngine(),
		WithArchive(archive),
		WithPublisher(pub),
		WithRecorder(rec),
		WithAnalyzerMetrics(m),
		WithRunIDs(func() string { return "run-1" }),
	)
	run, err := z.Analyze(context.Background(), models.AnalysisRequest{Positions: []models.Position{
		{Ticker: aapl, Quantity: 10, CostBasis: 100, AssetType: models.AssetStock},
		{Ticker: msft, Quantity: 5, CostBasis: 300, AssetType: models.AssetStock},
	}})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if run.ID != "run-1" || run.Benchmark != spx || run.Interval != DefaultInterval || run.Range != DefaultRange {
		t.Fatalf("unexpected run header: %+v", run)
	}
	if len(f.asked) != 3 || f.asked[2] != spx {
		t.Fatalf("benchmark not appended to history fetch: %v", f.asked)
	}
	pl, ok := run.Metrics.PerPosition[aapl].PL.Get()
	if !ok || pl != 100 {
		t.Fatalf("AAPL P/L = %v (%v), want 100", pl, ok)
	}
	beta, ok := run.Metrics.PerPosition[aapl].Beta.Get()
	if !ok || beta < 0.999 || beta > 1.001 {
		t.Fatalf("AAPL beta = %v (%v), want 1", beta, ok)
	}
	if w := run.Warnings(); len(w) != 1 || w[0].Ticker != msft {
		t.Fatalf("expected a single MSFT warning, got %+v", w)
	}
	if len(archive.stored) != 2 {
		t.Fatalf("expected 2 archived series, got %v", archive.stored)
	}
	if pub.calls != 1 || m.errors["analysis_publish"] != 1 {
		t.Fatalf("publish failure not recorded: calls=%d errors=%v", pub.calls, m.errors)
	}
	if len(rec.runs) != 1 || rec.runs[0] != run {
		t.Fatalf("run not recorded")
	}
	if m.analyses != 1 {
		t.Fatalf("analysis metric not recorded")
	}
	if run.Recommendations == nil {
		t.Fatalf("recommendations must be non-nil")
	}
}

func TestAnalyzerRequestOverrides(t *testing.T) {
	qqq := models.Ticker("QQQ")
	f := &stubFetcher{quotes: map[models.Ticker]models.FetchOutcome{
		qqq: models.QuoteSuccess(models.Quote{Ticker: qqq, Price: 400}),
	}}
	z := NewAnalyzer(f, analytics.NewEngine(), recommend.NewEngine(),
		WithHistoryDefaults("^IXIC", "1wk", "1y"),
	)
	run, err := z.Analyze(context.Background(), models.AnalysisRequest{
		Positions: []models.Position{{Ticker: qqq, Quantity: 1, CostBasis: 350}},
		Interval:  "1d",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if run.Benchmark != "^IXIC" || f.window != [2]string{"1d", "1y"} {
		t.Fatalf("unexpected window: benchmark=%s window=%v", run.Benchmark, f.window)
	}
	if len(f.quoteReq) != 1 {
		t.Fatalf("benchmark must not be quoted: %v", f.quoteReq)
	}
}

func TestSnapshotMarksStaleQuotes(t *testing.T) {
	a := models.Ticker("A")
	stale := models.QuoteSuccess(models.Quote{Ticker: a, Price: 10})
	stale.Status = models.StatusStale
	in := snapshot(nil, map[models.Ticker]models.FetchOutcome{a: stale}, nil, "^GSPC")
	if !in.StaleQuotes[a] || in.Quotes[a].Price != 10 {
		t.Fatalf("stale quote not carried: %+v", in)
	}
	if in.Benchmark != nil {
		t.Fatalf("benchmark should be nil without history")
	}
}

func TestValidWindow(t *testing.T) {
	cases := []struct {
		interval, rng string
		want          bool
	}{
		{"", "", true},
		{"1d", "6mo", true},
		{"7d", "6mo", false},
		{"1d", "forever", false},
	}
	for _, c := range cases {
		if got := ValidWindow(c.interval, c.rng); got != c.want {
			t.Fatalf("ValidWindow(%q, %q) = %v", c.interval, c.rng, got)
		}
	}
}
