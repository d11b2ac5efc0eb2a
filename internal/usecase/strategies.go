package usecase

import (
	"context"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/pkg/logger"
	"PortfolioPulse/pkg/util"
)

// Attempt is the state of one ticker walking the fallback chain.
type Attempt struct {
	Ticker   models.Ticker
	Kind     models.DataKind
	Key      models.CacheKey
	Last     models.FetchOutcome
	Attempts int
	// Interval and Range are set for history attempts.
	Interval string
	Range    string

	f     *Fetcher
	fetch func(ctx context.Context) models.FetchOutcome
}

func (f *Fetcher) newAttempt(t models.Ticker, kind models.DataKind, key models.CacheKey, fetch func(context.Context) models.FetchOutcome) *Attempt {
	return &Attempt{Ticker: t, Kind: kind, Key: key, f: f, fetch: fetch}
}

// Call issues one single-ticker provider call under the fetcher's limits.
func (a *Attempt) Call(ctx context.Context) models.FetchOutcome {
	a.Attempts++
	var o models.FetchOutcome
	if err := a.f.invoke(ctx, func(cctx context.Context) { o = a.fetch(cctx) }); err != nil {
		return models.Failure(a.Ticker, a.Kind, models.ReasonNetworkError, err.Error())
	}
	if o.Ticker == "" {
		o.Ticker = a.Ticker
	}
	return o
}

// retry re-issues the single call with capped exponential backoff while the
// last failure is retryable.
func (a *Attempt) retry(ctx context.Context) (models.FetchOutcome, bool) {
	for i := 0; i < a.f.maxRetries && a.Last.Reason.Retryable(); i++ {
		if err := a.f.sleep(ctx, a.f.backoff(i)); err != nil {
			return models.FetchOutcome{}, false
		}
		o := a.Call(ctx)
		if o.OK() {
			return o, true
		}
		a.Last = o
	}
	return models.FetchOutcome{}, false
}

// Strategy is one step of the fallback chain. It returns done=false to hand
// over to the next strategy.
type Strategy interface {
	Attempt(ctx context.Context, a *Attempt) (models.FetchOutcome, bool)
}

// RetryStrategy retries single-ticker failures that another call could fix.
// Invalid tickers and empty results are never retried.
type RetryStrategy struct{}

func (RetryStrategy) Attempt(ctx context.Context, a *Attempt) (models.FetchOutcome, bool) {
	if a.Last.Batched {
		return models.FetchOutcome{}, false
	}
	return a.retry(ctx)
}

// IsolateStrategy re-issues a failed batch member as a single-ticker call,
// retried under the same policy, so one bad symbol cannot sink its chunk.
type IsolateStrategy struct{}

func (IsolateStrategy) Attempt(ctx context.Context, a *Attempt) (models.FetchOutcome, bool) {
	if !a.Last.Batched {
		return models.FetchOutcome{}, false
	}
	o := a.Call(ctx)
	if o.OK() {
		return o, true
	}
	a.Last = o
	return a.retry(ctx)
}

// StaleCacheStrategy serves any cached value regardless of age.
type StaleCacheStrategy struct{}

func (StaleCacheStrategy) Attempt(ctx context.Context, a *Attempt) (models.FetchOutcome, bool) {
	entry, ok := a.f.cache.Get(ctx, a.Key)
	if !ok {
		return models.FetchOutcome{}, false
	}
	a.f.recordCache("stale")
	o := outcomeFromEntry(a.Key, entry, models.StatusStale)
	o.Reason = a.Last.Reason
	o.Detail = a.Last.Detail
	return o, true
}

// ArchiveStrategy serves a history window from the long-term archive when
// neither the provider nor the cache could. Archived series are reported
// stale and never written back to the cache.
type ArchiveStrategy struct {
	Archive drepo.HistoryArchive
}

func (s ArchiveStrategy) Attempt(ctx context.Context, a *Attempt) (models.FetchOutcome, bool) {
	if s.Archive == nil || a.Kind != models.KindHistory || a.Last.Reason == models.ReasonInvalidTicker {
		return models.FetchOutcome{}, false
	}
	now := a.f.now()
	series, err := s.Archive.LoadSeries(ctx, a.Ticker, a.Interval, util.RangeStart(now, a.Range), now)
	if err != nil {
		a.f.log.Warn("archive fallback failed",
			logger.String("ticker", a.Ticker.String()),
			logger.Error(err),
		)
		return models.FetchOutcome{}, false
	}
	if series == nil || series.Len() == 0 {
		return models.FetchOutcome{}, false
	}
	series.Ticker = a.Ticker
	series.Range = a.Range
	a.f.recordCache("archive")
	o := models.SeriesSuccess(*series)
	o.Status = models.StatusStale
	o.Reason = a.Last.Reason
	o.Detail = a.Last.Detail
	return o, true
}

// FailStrategy ends the chain with the last classified failure.
type FailStrategy struct{}

func (FailStrategy) Attempt(_ context.Context, a *Attempt) (models.FetchOutcome, bool) {
	o := a.Last
	o.Status = models.StatusFailure
	o.Quote, o.Series = nil, nil
	o.Batched = false
	return o, true
}
