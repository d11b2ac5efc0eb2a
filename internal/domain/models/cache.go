package models

import (
	"strings"
	"time"
)

// CacheKey identifies one cached value: ticker, data kind and range parameters.
type CacheKey struct {
	Ticker Ticker
	Kind   DataKind
	Params string
}

// QuoteKey is the cache key for the current quote of t.
func QuoteKey(t Ticker) CacheKey { return CacheKey{Ticker: t, Kind: KindQuote} }

// HistoryKey is the cache key for a series of t over interval and range.
func HistoryKey(t Ticker, interval, rng string) CacheKey {
	return CacheKey{Ticker: t, Kind: KindHistory, Params: interval + "/" + rng}
}

func (k CacheKey) String() string {
	parts := []string{string(k.Kind), string(k.Ticker)}
	if k.Params != "" {
		parts = append(parts, k.Params)
	}
	return strings.Join(parts, ":")
}

// CachedValue holds either a quote or a series.
type CachedValue struct {
	Quote  *Quote            `json:"quote,omitempty"`
	Series *HistoricalSeries `json:"series,omitempty"`
}

// CacheEntry is the last successful fetch for a key.
type CacheEntry struct {
	Key       CacheKey    `json:"-"`
	Value     CachedValue `json:"value"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Age is measured against now.
func (e CacheEntry) Age(now time.Time) time.Duration { return now.Sub(e.FetchedAt) }
