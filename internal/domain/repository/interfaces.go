package repository

import (
	"context"
	"time"

	"PortfolioPulse/internal/domain/models"
)

// Provider is the external market-data capability. Implementations translate
// provider failures into classified outcomes and never cache or retry.
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, t models.Ticker) models.FetchOutcome
	FetchQuotesBatch(ctx context.Context, tickers []models.Ticker) map[models.Ticker]models.FetchOutcome
	FetchHistory(ctx context.Context, t models.Ticker, interval, rng string) models.FetchOutcome
}

// PriceCache stores the last successful fetch per key. Staleness is judged by
// the reader; entries are only removed for capacity.
type PriceCache interface {
	Get(ctx context.Context, key models.CacheKey) (models.CacheEntry, bool)
	Put(ctx context.Context, key models.CacheKey, value models.CachedValue, fetchedAt time.Time)
	IsFresh(entry models.CacheEntry, ttl time.Duration) bool
	Len() int
}

// CacheBackend is an optional second level behind the in-process cache.
type CacheBackend interface {
	Load(ctx context.Context, key models.CacheKey) (models.CacheEntry, bool, error)
	Store(ctx context.Context, entry models.CacheEntry) error
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// RunPublisher fans analysis results out to downstream consumers.
type RunPublisher interface {
	Publish(ctx context.Context, run *models.AnalysisRun) error
	Close() error
}

// HistoryArchive keeps every fetched series for offline analysis.
type HistoryArchive interface {
	Init(ctx context.Context) error
	StoreSeries(ctx context.Context, s *models.HistoricalSeries) error
	LoadSeries(ctx context.Context, t models.Ticker, interval string, from, to time.Time) (*models.HistoricalSeries, error)
	Health(ctx context.Context) error
	Close() error
}

// RunRecorder persists a summary row per analysis run.
type RunRecorder interface {
	Record(ctx context.Context, run *models.AnalysisRun) error
	Recent(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}

// RunSummary is the persisted shape of a run.
type RunSummary struct {
	ID              string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	Positions       int       `json:"positions"`
	TotalValue      float64   `json:"total_value"`
	Excluded        int       `json:"excluded"`
	Recommendations int       `json:"recommendations"`
	Tags            []string  `json:"tags"`
}

type Metrics interface {
	RecordFetch(kind, status, reason string, attempts int)
	RecordCache(event string)
	RecordProviderLatency(op string, seconds float64)
	RecordAnalysis(seconds float64, positions, excluded int)
	RecordLastPrice(ticker string, price float64)
	RecordError(kind string)
}
