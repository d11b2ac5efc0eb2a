package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PortfolioPulse/internal/domain/models"
	pricecache "PortfolioPulse/internal/service/cache"
)

// fakeProvider serves prices from a map and fails on demand.
type fakeProvider struct {
	mu sync.Mutex

	prices    map[models.Ticker]float64
	fail      map[models.Ticker]models.FailureReason
	hangFirst map[models.Ticker]int
	hangBatch map[models.Ticker]int
	delay     time.Duration

	single      map[models.Ticker]int
	batches     int
	history     int
	inFlight    int
	maxInFlight int
}

func newFakeProvider(prices map[models.Ticker]float64) *fakeProvider {
	return &fakeProvider{
		prices:    prices,
		fail:      map[models.Ticker]models.FailureReason{},
		hangFirst: map[models.Ticker]int{},
		hangBatch: map[models.Ticker]int{},
		single:    map[models.Ticker]int{},
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) enter() func() {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}
}

func (p *fakeProvider) quote(t models.Ticker) models.FetchOutcome {
	if r, ok := p.fail[t]; ok {
		return models.Failure(t, models.KindQuote, r, "fake failure")
	}
	price, ok := p.prices[t]
	if !ok {
		return models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "unknown")
	}
	return models.QuoteSuccess(models.Quote{Ticker: t, Price: price, Currency: "USD", AsOf: time.Now()})
}

func (p *fakeProvider) FetchQuote(ctx context.Context, t models.Ticker) models.FetchOutcome {
	defer p.enter()()
	p.mu.Lock()
	p.single[t]++
	hang := p.hangFirst[t] > 0
	if hang {
		p.hangFirst[t]--
	}
	p.mu.Unlock()
	if hang {
		<-ctx.Done()
		return models.Failure(t, models.KindQuote, models.ReasonNetworkError, ctx.Err().Error())
	}
	return p.quote(t)
}

func (p *fakeProvider) FetchQuotesBatch(ctx context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome {
	defer p.enter()()
	p.mu.Lock()
	p.batches++
	hang := false
	for _, t := range tickers {
		if p.hangBatch[t] > 0 {
			p.hangBatch[t]--
			hang = true
		}
	}
	p.mu.Unlock()
	out := make(map[models.Ticker]models.FetchOutcome, len(tickers))
	if hang {
		<-ctx.Done()
		for _, t := range tickers {
			o := models.Failure(t, models.KindQuote, models.ReasonNetworkError, ctx.Err().Error())
			o.Batched = true
			out[t] = o
		}
		return out
	}
	for _, t := range tickers {
		o := p.quote(t)
		if !o.OK() {
			// batch endpoints drop bad symbols silently
			o = models.Failure(t, models.KindQuote, models.ReasonNoData, "missing from batch")
		}
		o.Batched = true
		out[t] = o
	}
	return out
}

func (p *fakeProvider) FetchHistory(ctx context.Context, t models.Ticker, interval, rng string) models.FetchOutcome {
	defer p.enter()()
	p.mu.Lock()
	p.history++
	p.mu.Unlock()
	if r, ok := p.fail[t]; ok {
		return models.Failure(t, models.KindHistory, r, "fake failure")
	}
	return models.SeriesSuccess(models.HistoricalSeries{
		Ticker: t, Interval: interval, Range: rng,
		Points: []models.Point{{Time: time.Now(), Close: p.prices[t]}},
	})
}

func (p *fakeProvider) calls(t models.Ticker) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.single[t]
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestFetcher(t *testing.T, p *fakeProvider, c *pricecache.PriceCache, opts ...FetcherOption) *Fetcher {
	t.Helper()
	opts = append([]FetcherOption{WithFetcherClock(nil, noSleep)}, opts...)
	f, err := NewFetcher(p, c, opts...)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

func TestFreshCacheHitSkipsProvider(t *testing.T) {
	p := newFakeProvider(map[models.Ticker]float64{"AAPL": 200})
	c := pricecache.NewPriceCache()
	c.Put(context.Background(), models.QuoteKey("AAPL"), models.CachedValue{Quote: &models.Quote{Ticker: "AAPL", Price: 150}}, time.Now())

	f := newTestFetcher(t, p, c)
	o := f.FetchQuote(context.Background(), "AAPL")
	if !o.OK() || o.Quote.Price != 150 || o.Quote.IsStale {
		t.Fatalf("expected cached success, got %+v", o)
	}
	if p.calls("AAPL") != 0 || p.batches != 0 {
		t.Fatal("provider must not be called on a fresh hit")
	}
}

func TestSuccessIsCached(t *testing.T) {
	p := newFakeProvider(map[models.Ticker]float64{"AAPL": 200})
	c := pricecache.NewPriceCache()
	f := newTestFetcher(t, p, c)

	if o := f.FetchQuote(context.Background(), "AAPL"); !o.OK() || o.Attempts != 1 {
		t.Fatalf("unexpected first outcome %+v", o)
	}
	if o := f.FetchQuote(context.Background(), "AAPL"); !o.OK() || o.Quote.Price != 200 {
		t.Fatalf("unexpected second outcome %+v", o)
	}
	if p.calls("AAPL") != 1 {
		t.Fatalf("second fetch should be served from cache, provider called %d times", p.calls("AAPL"))
	}
}

func TestStaleFallback(t *testing.T) {
	p := newFakeProvider(nil)
	p.fail["AAPL"] = models.ReasonNetworkError
	c := pricecache.NewPriceCache()
	c.Put(context.Background(), models.QuoteKey("AAPL"), models.CachedValue{Quote: &models.Quote{Ticker: "AAPL", Price: 140}}, time.Now().Add(-time.Hour))

	f := newTestFetcher(t, p, c, WithMaxRetries(2), WithCacheTTL(5*time.Minute))
	o := f.FetchQuote(context.Background(), "AAPL")
	if o.Status != models.StatusStale {
		t.Fatalf("expected stale fallback, got %+v", o)
	}
	if !o.Quote.IsStale || o.Quote.Price != 140 || o.Reason != models.ReasonNetworkError {
		t.Fatalf("unexpected stale outcome %+v", o)
	}
	if o.Attempts != 3 || p.calls("AAPL") != 3 {
		t.Fatalf("expected 1 call + 2 retries, got attempts=%d calls=%d", o.Attempts, p.calls("AAPL"))
	}
}

func TestClassifiedFailureNotRetried(t *testing.T) {
	p := newFakeProvider(nil)
	f := newTestFetcher(t, p, pricecache.NewPriceCache())

	o := f.FetchQuote(context.Background(), "NOPE")
	if o.Status != models.StatusFailure || o.Reason != models.ReasonInvalidTicker {
		t.Fatalf("expected invalidTicker failure, got %+v", o)
	}
	if p.calls("NOPE") != 1 {
		t.Fatalf("invalid tickers must not be retried, got %d calls", p.calls("NOPE"))
	}
}

func TestRateLimitedExhaustsRetries(t *testing.T) {
	p := newFakeProvider(nil)
	p.fail["AAPL"] = models.ReasonRateLimited
	var slept []time.Duration
	var mu sync.Mutex
	sleep := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	f, err := NewFetcher(p, pricecache.NewPriceCache(),
		WithMaxRetries(4),
		WithBackoff(100*time.Millisecond, 300*time.Millisecond),
		WithFetcherClock(nil, sleep),
	)
	if err != nil {
		t.Fatal(err)
	}
	o := f.FetchQuote(context.Background(), "AAPL")
	if o.Reason != models.ReasonRateLimited || o.Attempts != 5 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if fmt.Sprint(slept) != fmt.Sprint(want) {
		t.Fatalf("backoff = %v, want %v", slept, want)
	}
}

func TestBatchIsolation(t *testing.T) {
	const n = 6
	for k := 0; k <= n; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			prices := map[models.Ticker]float64{}
			var tickers []models.Ticker
			for i := 0; i < n; i++ {
				tk := models.Ticker(fmt.Sprintf("T%d", i))
				tickers = append(tickers, tk)
				if i >= k {
					prices[tk] = float64(10 + i)
				}
			}
			p := newFakeProvider(prices)
			f := newTestFetcher(t, p, pricecache.NewPriceCache(), WithMaxBatchSize(n))

			out := f.FetchQuotes(context.Background(), tickers)
			if len(out) != n {
				t.Fatalf("expected %d outcomes, got %d", n, len(out))
			}
			ok, failed := 0, 0
			for i, tk := range tickers {
				o := out[tk]
				if i < k {
					if o.Status != models.StatusFailure || o.Reason != models.ReasonInvalidTicker {
						t.Fatalf("%s: expected isolated invalidTicker, got %+v", tk, o)
					}
					if p.calls(tk) != 1 {
						t.Fatalf("%s: expected one isolation call, got %d", tk, p.calls(tk))
					}
					failed++
					continue
				}
				if !o.OK() || o.Quote.Price != float64(10+i) {
					t.Fatalf("%s: expected success, got %+v", tk, o)
				}
				if p.calls(tk) != 0 {
					t.Fatalf("%s: batch success must not trigger single calls", tk)
				}
				ok++
			}
			if ok != n-k || failed != k || p.batches != 1 {
				t.Fatalf("ok=%d failed=%d batches=%d", ok, failed, p.batches)
			}
		})
	}
}

func TestBatchChunking(t *testing.T) {
	prices := map[models.Ticker]float64{}
	var tickers []models.Ticker
	for i := 0; i < 7; i++ {
		tk := models.Ticker(fmt.Sprintf("C%d", i))
		prices[tk] = 1
		tickers = append(tickers, tk)
	}
	p := newFakeProvider(prices)
	f := newTestFetcher(t, p, pricecache.NewPriceCache(), WithMaxBatchSize(3))
	out := f.FetchQuotes(context.Background(), tickers)
	// 3 + 3 batched, the last one alone goes through the single endpoint
	if len(out) != 7 || p.batches != 2 || p.calls("C6") != 1 {
		t.Fatalf("outcomes=%d batches=%d singleC6=%d", len(out), p.batches, p.calls("C6"))
	}
}

func TestTimeoutOnceThenRetry(t *testing.T) {
	p := newFakeProvider(map[models.Ticker]float64{"SLOW": 42})
	p.hangFirst["SLOW"] = 1
	f := newTestFetcher(t, p, pricecache.NewPriceCache(), WithRequestTimeout(20*time.Millisecond))

	o := f.FetchQuote(context.Background(), "SLOW")
	if !o.OK() || o.Quote.Price != 42 {
		t.Fatalf("expected success after retry, got %+v", o)
	}
	if o.Attempts != 2 || p.calls("SLOW") != 2 {
		t.Fatalf("expected exactly one extra attempt, got attempts=%d calls=%d", o.Attempts, p.calls("SLOW"))
	}
}

func TestBatchTimeoutChargesOnlySlowTicker(t *testing.T) {
	p := newFakeProvider(map[models.Ticker]float64{"AAA": 1, "SLOW": 2, "CCC": 3})
	p.hangBatch["SLOW"] = 1
	p.hangFirst["SLOW"] = 1
	f := newTestFetcher(t, p, pricecache.NewPriceCache(), WithRequestTimeout(20*time.Millisecond))

	tickers := []models.Ticker{"AAA", "SLOW", "CCC"}
	out := f.FetchQuotes(context.Background(), tickers)
	want := map[models.Ticker]int{"AAA": 1, "SLOW": 2, "CCC": 1}
	for _, tk := range tickers {
		o := out[tk]
		if !o.OK() {
			t.Fatalf("%s: expected success, got %+v", tk, o)
		}
		if o.Attempts != want[tk] {
			t.Fatalf("%s: attempts = %d, want %d", tk, o.Attempts, want[tk])
		}
	}
	if p.batches != 1 || p.calls("SLOW") != 2 || p.calls("AAA") != 1 {
		t.Fatalf("batches=%d singleSLOW=%d singleAAA=%d", p.batches, p.calls("SLOW"), p.calls("AAA"))
	}
}

func TestTimeoutDoesNotAffectSiblings(t *testing.T) {
	p := newFakeProvider(map[models.Ticker]float64{"SLOW": 1, "FAST": 2})
	p.hangFirst["SLOW"] = 10
	f := newTestFetcher(t, p, pricecache.NewPriceCache(),
		WithRequestTimeout(10*time.Millisecond),
		WithMaxBatchSize(1),
		WithMaxRetries(1),
	)
	out := f.FetchQuotes(context.Background(), []models.Ticker{"SLOW", "FAST"})
	if out["SLOW"].Reason != models.ReasonNetworkError {
		t.Fatalf("SLOW should time out, got %+v", out["SLOW"])
	}
	if !out["FAST"].OK() {
		t.Fatalf("FAST should succeed, got %+v", out["FAST"])
	}
}

func TestConcurrencyBound(t *testing.T) {
	prices := map[models.Ticker]float64{}
	var tickers []models.Ticker
	for i := 0; i < 20; i++ {
		tk := models.Ticker(fmt.Sprintf("K%d", i))
		prices[tk] = 1
		tickers = append(tickers, tk)
	}
	p := newFakeProvider(prices)
	p.delay = 5 * time.Millisecond
	f := newTestFetcher(t, p, pricecache.NewPriceCache(), WithMaxBatchSize(1), WithMaxConcurrency(3))

	out := f.FetchQuotes(context.Background(), tickers)
	if len(out) != 20 {
		t.Fatalf("expected 20 outcomes, got %d", len(out))
	}
	if p.maxInFlight > 3 {
		t.Fatalf("in-flight calls reached %d, bound is 3", p.maxInFlight)
	}
}

func TestNewFetcherRejectsBadOptions(t *testing.T) {
	p := newFakeProvider(nil)
	c := pricecache.NewPriceCache()
	cases := []FetcherOption{
		WithMaxRetries(-1),
		WithMaxBatchSize(0),
		WithMaxConcurrency(0),
	}
	for i, opt := range cases {
		if _, err := NewFetcher(p, c, opt); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if _, err := NewFetcher(p, c, WithMaxRetries(0)); err != nil {
		t.Errorf("zero retries is valid: %v", err)
	}
}

func TestMalformedTickerShortCircuits(t *testing.T) {
	p := newFakeProvider(nil)
	f := newTestFetcher(t, p, pricecache.NewPriceCache())
	o := f.FetchQuote(context.Background(), "bad ticker")
	if o.Reason != models.ReasonInvalidTicker || p.calls("bad ticker") != 0 {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestFetchHistoriesCachedPerParams(t *testing.T) {
	p := newFakeProvider(map[models.Ticker]float64{"AAPL": 1, "MSFT": 2})
	f := newTestFetcher(t, p, pricecache.NewPriceCache())
	ctx := context.Background()

	out := f.FetchHistories(ctx, []models.Ticker{"AAPL", "MSFT"}, "1d", "6mo")
	if !out["AAPL"].OK() || !out["MSFT"].OK() || p.history != 2 {
		t.Fatalf("unexpected first pass %+v (calls %d)", out, p.history)
	}
	f.FetchHistories(ctx, []models.Ticker{"AAPL"}, "1d", "6mo")
	if p.history != 2 {
		t.Fatal("same params should hit the cache")
	}
	f.FetchHistories(ctx, []models.Ticker{"AAPL"}, "1wk", "1y")
	if p.history != 3 {
		t.Fatal("different params are a different cache key")
	}
}

func TestOrdered(t *testing.T) {
	m := map[models.Ticker]models.FetchOutcome{
		"B": {Ticker: "B"},
		"A": {Ticker: "A"},
	}
	got := Ordered([]models.Ticker{"B", "A", "B", "C"}, m)
	if len(got) != 2 || got[0].Ticker != "B" || got[1].Ticker != "A" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestCustomChainWithoutStale(t *testing.T) {
	p := newFakeProvider(nil)
	p.fail["AAPL"] = models.ReasonNetworkError
	c := pricecache.NewPriceCache()
	c.Put(context.Background(), models.QuoteKey("AAPL"), models.CachedValue{Quote: &models.Quote{Ticker: "AAPL", Price: 1}}, time.Now().Add(-time.Hour))

	f := newTestFetcher(t, p, c, WithStrategies(FailStrategy{}))
	o := f.FetchQuote(context.Background(), "AAPL")
	if o.Status != models.StatusFailure || p.calls("AAPL") != 1 {
		t.Fatalf("chain without retry/stale should fail after one call: %+v", o)
	}
}

// seriesArchive serves canned series and records the windows asked for.
type seriesArchive struct {
	mu     sync.Mutex
	series map[models.Ticker]*models.HistoricalSeries
	err    error
	asked  []string
}

func (a *seriesArchive) Init(context.Context) error                                  { return nil }
func (a *seriesArchive) StoreSeries(context.Context, *models.HistoricalSeries) error { return nil }
func (a *seriesArchive) Health(context.Context) error                                { return a.err }
func (a *seriesArchive) Close() error                                                { return nil }

func (a *seriesArchive) LoadSeries(_ context.Context, t models.Ticker, interval string, from, to time.Time) (*models.HistoricalSeries, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !from.Before(to) {
		return nil, fmt.Errorf("empty window %s..%s", from, to)
	}
	a.asked = append(a.asked, t.String()+"/"+interval)
	if a.err != nil {
		return nil, a.err
	}
	s, ok := a.series[t]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func TestArchiveFallbackForHistory(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	archived := &models.HistoricalSeries{Ticker: "AAPL", Interval: "1d", Points: []models.Point{
		{Time: day, Close: 180}, {Time: day.AddDate(0, 0, 1), Close: 182},
	}}

	cases := []struct {
		name       string
		archive    *seriesArchive
		wantStatus models.OutcomeStatus
		wantPoints int
	}{
		{"archived", &seriesArchive{series: map[models.Ticker]*models.HistoricalSeries{"AAPL": archived}}, models.StatusStale, 2},
		{"not archived", &seriesArchive{}, models.StatusFailure, 0},
		{"archive down", &seriesArchive{err: fmt.Errorf("connection refused")}, models.StatusFailure, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakeProvider(nil)
			p.fail["AAPL"] = models.ReasonNetworkError
			c := pricecache.NewPriceCache()
			f := newTestFetcher(t, p, c, WithArchiveFallback(tc.archive))

			o := f.FetchHistory(context.Background(), "AAPL", "1d", "6mo")
			if o.Status != tc.wantStatus || o.Reason != models.ReasonNetworkError {
				t.Fatalf("unexpected outcome %+v", o)
			}
			if got := len(o.Series.Closes()); got != tc.wantPoints {
				t.Fatalf("points = %d, want %d", got, tc.wantPoints)
			}
			if tc.wantPoints > 0 && o.Series.Range != "6mo" {
				t.Fatalf("range = %q", o.Series.Range)
			}
			if len(tc.archive.asked) != 1 || tc.archive.asked[0] != "AAPL/1d" {
				t.Fatalf("archive asked %v", tc.archive.asked)
			}
			if c.Len() != 0 {
				t.Fatalf("archived data must not be cached, cache has %d entries", c.Len())
			}
		})
	}
}

func TestArchiveFallbackSkipsQuotesAndPrecedesFail(t *testing.T) {
	archive := &seriesArchive{}
	p := newFakeProvider(nil)
	p.fail["AAPL"] = models.ReasonNetworkError
	f := newTestFetcher(t, p, pricecache.NewPriceCache(), WithArchiveFallback(archive))

	if o := f.FetchQuote(context.Background(), "AAPL"); o.Status != models.StatusFailure {
		t.Fatalf("expected failure, got %+v", o)
	}
	if len(archive.asked) != 0 {
		t.Fatalf("quotes must not read the archive: %v", archive.asked)
	}

	n := len(f.chain)
	if _, ok := f.chain[n-2].(ArchiveStrategy); !ok {
		t.Fatalf("archive must run right before the final strategy: %T", f.chain[n-2])
	}
	if _, ok := f.chain[n-1].(FailStrategy); !ok {
		t.Fatalf("chain must end with FailStrategy: %T", f.chain[n-1])
	}
}
