package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PortfolioPulse/internal/domain/models"
	domrepo "PortfolioPulse/internal/domain/repository"
)

// ErrThrottled is returned for prints dropped by the per-ticker throttle.
var ErrThrottled = errors.New("trade throttled")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

// RealtimePipeline sits between the live stream and the quote cache. It
// validates prints, throttles each ticker to maxRPS and forwards the rest.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	maxAge    time.Duration
	transform func(*models.Trade) *models.Trade
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[models.Ticker]time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max accepted trades per second per ticker; zero
// disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithMaxAge drops prints older than d relative to the pipeline clock.
func WithMaxAge(d time.Duration) PipelineOption {
	return func(p *RealtimePipeline) { p.maxAge = d }
}

// WithTransform rewrites trades before validation of the result.
func WithTransform(fn func(*models.Trade) *models.Trade) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   5,
		now:      time.Now,
		lastSeen: make(map[models.Ticker]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles, and forwards t.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Trade) error {
	now := p.now()
	if err := p.validate(t, now); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := p.validate(t, now); err != nil {
			p.recordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(t.Ticker, now) {
		return ErrThrottled
	}
	if err := p.proc.Process(ctx, t); err != nil {
		p.recordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	return nil
}

func (p *RealtimePipeline) validate(t *models.Trade, now time.Time) error {
	switch {
	case t == nil:
		return fmt.Errorf("trade nil")
	case !t.Ticker.Valid():
		return fmt.Errorf("%w: %q", models.ErrInvalidTicker, t.Ticker)
	case t.Timestamp.IsZero():
		return fmt.Errorf("timestamp missing")
	case t.Price <= 0 || t.Volume < 0:
		return fmt.Errorf("non-positive price or negative volume")
	case p.maxAge > 0 && now.Sub(t.Timestamp) > p.maxAge:
		return fmt.Errorf("trade older than %s", p.maxAge)
	}
	return nil
}

func (p *RealtimePipeline) allow(t models.Ticker, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, seen := p.lastSeen[t]
	if seen && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[t] = now
	return true
}

func (p *RealtimePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
