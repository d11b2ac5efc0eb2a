package scheduler

import (
	"context"
	"fmt"
	"time"

	"PortfolioPulse/internal/domain/models"
	drepo "PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/internal/domain/service"
	"PortfolioPulse/pkg/logger"
	"PortfolioPulse/pkg/util"

	"github.com/robfig/cron/v3"
)

// Scheduler keeps the price cache warm for a watchlist so interactive
// analyses mostly hit fresh entries.
type Scheduler struct {
	cron       *cron.Cron
	fetcher    service.QuoteFetcher
	watchlist  []models.Ticker
	benchmark  models.Ticker
	interval   string
	rng        string
	marketOnly bool
	market     func(time.Time) util.MarketStatus
	now        func() time.Time
	metrics    drepo.Metrics
	log        *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

type Option func(*Scheduler)

// WithLocation evaluates cron expressions in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.cron = cron.New(cron.WithLocation(loc))
		}
	}
}

func WithBenchmark(t models.Ticker) Option {
	return func(s *Scheduler) { s.benchmark = t }
}

func WithHistoryWindow(interval, rng string) Option {
	return func(s *Scheduler) { s.interval, s.rng = interval, rng }
}

// WithMarketHoursOnly skips quote warm-ups while the US session is closed.
func WithMarketHoursOnly(on bool) Option {
	return func(s *Scheduler) { s.marketOnly = on }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(fetcher service.QuoteFetcher, watchlist []models.Ticker, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		fetcher:   fetcher,
		watchlist: watchlist,
		interval:  "1d",
		rng:       "6mo",
		market:    util.USMarketStatus,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Register adds the quote warm-up and history refresh jobs. An empty spec
// leaves that job unscheduled.
func (s *Scheduler) Register(quoteSpec, historySpec string) error {
	if quoteSpec != "" {
		if _, err := s.cron.AddFunc(quoteSpec, func() { s.WarmQuotes(s.ctx) }); err != nil {
			return fmt.Errorf("register quote warm-up: %w", err)
		}
	}
	if historySpec != "" {
		if _, err := s.cron.AddFunc(historySpec, func() { s.RefreshHistory(s.ctx) }); err != nil {
			return fmt.Errorf("register history refresh: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.cron.Entries())), logger.Int("watchlist", len(s.watchlist)))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WarmQuotes fetches current quotes for the watchlist. It returns the number
// of tickers that ended without a usable quote, or -1 when skipped.
func (s *Scheduler) WarmQuotes(ctx context.Context) int {
	if len(s.watchlist) == 0 {
		return -1
	}
	if s.marketOnly && !s.market(s.now()).Open {
		s.log.Debug("quote warm-up skipped, market closed")
		return -1
	}
	return s.run(ctx, "quote", func() map[models.Ticker]models.FetchOutcome {
		return s.fetcher.FetchQuotes(ctx, s.watchlist)
	})
}

// RefreshHistory fetches the configured window for the watchlist and the
// benchmark.
func (s *Scheduler) RefreshHistory(ctx context.Context) int {
	tickers := s.watchlist
	if s.benchmark != "" && !contains(tickers, s.benchmark) {
		tickers = append(append([]models.Ticker(nil), tickers...), s.benchmark)
	}
	if len(tickers) == 0 {
		return -1
	}
	return s.run(ctx, "history", func() map[models.Ticker]models.FetchOutcome {
		return s.fetcher.FetchHistories(ctx, tickers, s.interval, s.rng)
	})
}

func (s *Scheduler) run(ctx context.Context, job string, fetch func() map[models.Ticker]models.FetchOutcome) int {
	start := s.now()
	failed := 0
	var stale []string
	for t, o := range fetch() {
		switch {
		case !o.Usable():
			failed++
			s.log.Warn("scheduled fetch failed",
				logger.String("job", job),
				logger.String("ticker", t.String()),
				logger.String("reason", string(o.Reason)),
			)
		case !o.OK():
			stale = append(stale, t.String())
		}
	}
	if failed > 0 && s.metrics != nil {
		s.metrics.RecordError("schedule_" + job)
	}
	s.log.Info("scheduled fetch done",
		logger.String("job", job),
		logger.Int("failed", failed),
		logger.Strings("stale", stale),
		logger.Duration("took", s.now().Sub(start)),
	)
	if ctx.Err() != nil {
		s.log.Warn("scheduled fetch interrupted", logger.String("job", job))
	}
	return failed
}

func contains(ts []models.Ticker, t models.Ticker) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}
