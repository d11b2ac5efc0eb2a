package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/domain/service"
	"PortfolioPulse/internal/service/ratelimit"
	"PortfolioPulse/pkg/logger"
)

// Defaults for Fetcher.
const (
	DefaultCacheTTL       = 300 * time.Second
	DefaultMaxBatchSize   = 50
	DefaultMaxRetries     = 3
	DefaultMaxConcurrency = 8
	DefaultRequestTimeout = 10 * time.Second
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffCap     = 8 * time.Second
)

// Fetcher resolves quotes and histories through cache, provider and a
// fallback strategy chain. It never fails as a whole: every requested ticker
// gets an outcome.
type Fetcher struct {
	provider drepo.Provider
	cache    drepo.PriceCache
	metrics  drepo.Metrics
	log      *logger.Logger

	ttl            time.Duration
	maxBatchSize   int
	maxRetries     int
	maxConcurrency int
	timeout        time.Duration
	backoffBase    time.Duration
	backoffCap     time.Duration

	limiter *ratelimit.Limiter
	rate    float64
	burst   float64
	sem     chan struct{}
	chain   []Strategy
	archive drepo.HistoryArchive
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCacheTTL sets how long a cache entry counts as fresh.
func WithCacheTTL(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.ttl = d }
}

// WithMaxBatchSize bounds tickers per batched provider call.
func WithMaxBatchSize(n int) FetcherOption {
	return func(f *Fetcher) { f.maxBatchSize = n }
}

// WithMaxRetries sets retries after the first failed call.
func WithMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) { f.maxRetries = n }
}

// WithMaxConcurrency bounds in-flight provider calls.
func WithMaxConcurrency(n int) FetcherOption {
	return func(f *Fetcher) { f.maxConcurrency = n }
}

// WithRequestTimeout bounds each provider call.
func WithRequestTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithBackoff sets the retry backoff base and cap.
func WithBackoff(base, cap time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if base > 0 {
			f.backoffBase = base
		}
		if cap >= base {
			f.backoffCap = cap
		}
	}
}

// WithRateLimit throttles provider calls to perSecond with the given burst.
// A non-positive rate disables throttling.
func WithRateLimit(l *ratelimit.Limiter, perSecond float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		f.limiter = l
		f.rate = perSecond
		f.burst = float64(burst)
	}
}

// WithStrategies replaces the fallback chain.
func WithStrategies(chain ...Strategy) FetcherOption {
	return func(f *Fetcher) { f.chain = chain }
}

// WithArchiveFallback consults the history archive after the stale cache and
// before giving up.
func WithArchiveFallback(a drepo.HistoryArchive) FetcherOption {
	return func(f *Fetcher) { f.archive = a }
}

// WithFetcherMetrics records outcomes.
func WithFetcherMetrics(m drepo.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l *logger.Logger) FetcherOption {
	return func(f *Fetcher) { f.log = l }
}

// WithFetcherClock overrides time for tests.
func WithFetcherClock(now func() time.Time, sleep func(context.Context, time.Duration) error) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// DefaultStrategies is retry, isolate, stale cache, fail.
func DefaultStrategies() []Strategy {
	return []Strategy{RetryStrategy{}, IsolateStrategy{}, StaleCacheStrategy{}, FailStrategy{}}
}

// NewFetcher validates options and builds a Fetcher.
func NewFetcher(provider drepo.Provider, cache drepo.PriceCache, opts ...FetcherOption) (*Fetcher, error) {
	if provider == nil || cache == nil {
		return nil, errors.New("fetcher: provider and cache are required")
	}
	f := &Fetcher{
		provider:       provider,
		cache:          cache,
		log:            logger.Nop(),
		ttl:            DefaultCacheTTL,
		maxBatchSize:   DefaultMaxBatchSize,
		maxRetries:     DefaultMaxRetries,
		maxConcurrency: DefaultMaxConcurrency,
		timeout:        DefaultRequestTimeout,
		backoffBase:    DefaultBackoffBase,
		backoffCap:     DefaultBackoffCap,
		chain:          DefaultStrategies(),
		now:            time.Now,
		sleep:          sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}

	switch {
	case f.maxRetries < 0:
		return nil, fmt.Errorf("fetcher: max retries must be >= 0, got %d", f.maxRetries)
	case f.maxBatchSize < 1:
		return nil, fmt.Errorf("fetcher: max batch size must be >= 1, got %d", f.maxBatchSize)
	case f.maxConcurrency < 1:
		return nil, fmt.Errorf("fetcher: max concurrency must be >= 1, got %d", f.maxConcurrency)
	}
	if f.archive != nil {
		f.chain = withArchive(f.chain, ArchiveStrategy{Archive: f.archive})
	}
	f.sem = make(chan struct{}, f.maxConcurrency)
	return f, nil
}

// withArchive inserts s in front of the first FailStrategy, or at the end.
func withArchive(chain []Strategy, s ArchiveStrategy) []Strategy {
	out := make([]Strategy, 0, len(chain)+1)
	inserted := false
	for _, c := range chain {
		if _, fail := c.(FailStrategy); fail && !inserted {
			out = append(out, s)
			inserted = true
		}
		out = append(out, c)
	}
	if !inserted {
		out = append(out, s)
	}
	return out
}

var _ service.QuoteFetcher = (*Fetcher)(nil)

// FetchQuote is FetchQuotes for one ticker.
func (f *Fetcher) FetchQuote(ctx context.Context, t models.Ticker) models.FetchOutcome {
	return f.FetchQuotes(ctx, []models.Ticker{t})[t]
}

// FetchHistory is FetchHistories for one ticker.
func (f *Fetcher) FetchHistory(ctx context.Context, t models.Ticker, interval, rng string) models.FetchOutcome {
	return f.FetchHistories(ctx, []models.Ticker{t}, interval, rng)[t]
}

// FetchQuotes returns one outcome per distinct ticker. Cache hits never reach
// the provider; misses are batched in chunks of maxBatchSize.
func (f *Fetcher) FetchQuotes(ctx context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome {
	res := newResults(len(tickers))
	var misses []models.Ticker
	for _, t := range distinct(tickers) {
		if !t.Valid() {
			res.set(f.finish(models.Failure(t, models.KindQuote, models.ReasonInvalidTicker, "malformed ticker")))
			continue
		}
		if o, ok := f.fromCache(ctx, models.QuoteKey(t)); ok {
			res.set(f.finish(o))
			continue
		}
		misses = append(misses, t)
	}

	var wg sync.WaitGroup
	for _, chunk := range chunks(misses, f.maxBatchSize) {
		wg.Add(1)
		go func(chunk []models.Ticker) {
			defer wg.Done()
			f.fetchQuoteChunk(ctx, chunk, res, &wg)
		}(chunk)
	}
	wg.Wait()
	return res.m
}

// FetchHistories fetches each ticker's series with one call per ticker.
func (f *Fetcher) FetchHistories(ctx context.Context, tickers []models.Ticker, interval, rng string) map[models.Ticker]models.FetchOutcome {
	res := newResults(len(tickers))
	var wg sync.WaitGroup
	for _, t := range distinct(tickers) {
		if !t.Valid() {
			res.set(f.finish(models.Failure(t, models.KindHistory, models.ReasonInvalidTicker, "malformed ticker")))
			continue
		}
		key := models.HistoryKey(t, interval, rng)
		if o, ok := f.fromCache(ctx, key); ok {
			res.set(f.finish(o))
			continue
		}
		wg.Add(1)
		go func(t models.Ticker, key models.CacheKey) {
			defer wg.Done()
			a := f.newAttempt(t, models.KindHistory, key, func(ctx context.Context) models.FetchOutcome {
				return f.provider.FetchHistory(ctx, t, interval, rng)
			})
			a.Interval, a.Range = interval, rng
			res.set(f.resolve(ctx, a, a.Call(ctx)))
		}(t, key)
	}
	wg.Wait()
	return res.m
}

func (f *Fetcher) fetchQuoteChunk(ctx context.Context, chunk []models.Ticker, res *results, wg *sync.WaitGroup) {
	single := func(t models.Ticker) func(context.Context) models.FetchOutcome {
		return func(ctx context.Context) models.FetchOutcome { return f.provider.FetchQuote(ctx, t) }
	}

	if len(chunk) == 1 {
		t := chunk[0]
		a := f.newAttempt(t, models.KindQuote, models.QuoteKey(t), single(t))
		res.set(f.resolve(ctx, a, a.Call(ctx)))
		return
	}

	var (
		batch    map[models.Ticker]models.FetchOutcome
		timedOut bool
	)
	err := f.invoke(ctx, func(cctx context.Context) {
		batch = f.provider.FetchQuotesBatch(cctx, chunk)
		timedOut = cctx.Err() != nil
	})
	// A batch that never ran or ran out of time says nothing about its
	// members: they are re-issued alone and the batch call is not counted
	// against them.
	split := err != nil || timedOut

	for _, t := range chunk {
		o, ok := batch[t]
		a := f.newAttempt(t, models.KindQuote, models.QuoteKey(t), single(t))
		if ok && o.OK() {
			a.Attempts = 1
			o.Attempts = 1
			res.set(f.resolve(ctx, a, o))
			continue
		}

		wg.Add(1)
		if split {
			go func(a *Attempt) {
				defer wg.Done()
				res.set(f.resolve(ctx, a, a.Call(ctx)))
			}(a)
			continue
		}
		if !ok {
			o = models.Failure(t, models.KindQuote, models.ReasonNoData, "no outcome from batch call")
		}
		o.Batched = true
		o.Attempts = 1
		a.Attempts = 1
		// each failed ticker walks the chain on its own
		go func(a *Attempt, o models.FetchOutcome) {
			defer wg.Done()
			res.set(f.resolve(ctx, a, o))
		}(a, o)
	}
}

// resolve caches a success or runs the strategy chain over a failure.
func (f *Fetcher) resolve(ctx context.Context, a *Attempt, o models.FetchOutcome) models.FetchOutcome {
	if o.OK() {
		return f.finish(f.store(ctx, a, o))
	}
	a.Last = o
	for _, s := range f.chain {
		if out, done := s.Attempt(ctx, a); done {
			if out.OK() {
				out = f.store(ctx, a, out)
			}
			out.Attempts = a.Attempts
			return f.finish(out)
		}
	}
	last := a.Last
	last.Attempts = a.Attempts
	return f.finish(last)
}

func (f *Fetcher) store(ctx context.Context, a *Attempt, o models.FetchOutcome) models.FetchOutcome {
	o.Ticker = a.Ticker
	o.Attempts = a.Attempts
	o.Batched = false
	var v models.CachedValue
	switch {
	case o.Quote != nil:
		o.Quote.IsStale = false
		v.Quote = o.Quote
	case o.Series != nil:
		v.Series = o.Series
	default:
		return o
	}
	f.cache.Put(ctx, a.Key, v, f.now())
	return o
}

func (f *Fetcher) fromCache(ctx context.Context, key models.CacheKey) (models.FetchOutcome, bool) {
	entry, ok := f.cache.Get(ctx, key)
	if !ok || !f.cache.IsFresh(entry, f.ttl) {
		f.recordCache("miss")
		return models.FetchOutcome{}, false
	}
	f.recordCache("hit")
	o := outcomeFromEntry(key, entry, models.StatusSuccess)
	return o, true
}

func outcomeFromEntry(key models.CacheKey, entry models.CacheEntry, status models.OutcomeStatus) models.FetchOutcome {
	o := models.FetchOutcome{Ticker: key.Ticker, Kind: key.Kind, Status: status}
	stale := status == models.StatusStale
	if entry.Value.Quote != nil {
		q := *entry.Value.Quote
		q.IsStale = stale
		o.Quote = &q
	}
	if entry.Value.Series != nil {
		s := *entry.Value.Series
		o.Series = &s
	}
	return o
}

// invoke runs fn under the concurrency bound, rate limit and per-call
// timeout. It only errors when ctx ends before the call starts.
func (f *Fetcher) invoke(ctx context.Context, fn func(context.Context)) error {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-f.sem }()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.provider.Name(), f.burst, f.rate); err != nil {
			return err
		}
	}

	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	fn(cctx)
	return nil
}

func (f *Fetcher) backoff(retry int) time.Duration {
	d := f.backoffBase
	for i := 0; i < retry && d < f.backoffCap; i++ {
		d *= 2
	}
	if d > f.backoffCap {
		d = f.backoffCap
	}
	return d
}

func (f *Fetcher) finish(o models.FetchOutcome) models.FetchOutcome {
	if f.metrics != nil {
		f.metrics.RecordFetch(string(o.Kind), string(o.Status), string(o.Reason), o.Attempts)
		if o.OK() && o.Quote != nil {
			f.metrics.RecordLastPrice(o.Ticker.String(), o.Quote.Price)
		}
	}
	if !o.OK() {
		f.log.Debug("fetch resolved without fresh data",
			logger.String("ticker", o.Ticker.String()),
			logger.String("kind", string(o.Kind)),
			logger.String("status", string(o.Status)),
			logger.String("reason", string(o.Reason)),
			logger.Int("attempts", o.Attempts),
		)
	}
	return o
}

func (f *Fetcher) recordCache(event string) {
	if f.metrics != nil {
		f.metrics.RecordCache(event)
	}
}

// Ordered lists outcomes in request order, skipping duplicates.
func Ordered(tickers []models.Ticker, outcomes map[models.Ticker]models.FetchOutcome) []models.FetchOutcome {
	out := make([]models.FetchOutcome, 0, len(outcomes))
	for _, t := range distinct(tickers) {
		if o, ok := outcomes[t]; ok {
			out = append(out, o)
		}
	}
	return out
}

type results struct {
	mu sync.Mutex
	m  map[models.Ticker]models.FetchOutcome
}

func newResults(n int) *results {
	return &results{m: make(map[models.Ticker]models.FetchOutcome, n)}
}

func (r *results) set(o models.FetchOutcome) {
	r.mu.Lock()
	r.m[o.Ticker] = o
	r.mu.Unlock()
}

func distinct(tickers []models.Ticker) []models.Ticker {
	seen := make(map[models.Ticker]struct{}, len(tickers))
	out := make([]models.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func chunks(tickers []models.Ticker, size int) [][]models.Ticker {
	var out [][]models.Ticker
	for len(tickers) > 0 {
		n := size
		if n > len(tickers) {
			n = len(tickers)
		}
		out = append(out, tickers[:n:n])
		tickers = tickers[n:]
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
