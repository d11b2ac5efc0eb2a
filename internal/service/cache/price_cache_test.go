package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PortfolioPulse/internal/domain/models"
	pkgcache "PortfolioPulse/pkg/cache"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quoteValue(t models.Ticker, price float64) models.CachedValue {
	return models.CachedValue{Quote: &models.Quote{Ticker: t, Price: price, Currency: "USD"}}
}

func TestPriceCacheFreshThenStaleButKept(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)}
	c := NewPriceCache(WithClock(clk.Now))

	key := models.QuoteKey("AAPL")
	c.Put(ctx, key, quoteValue("AAPL", 190), clk.Now())

	e, ok := c.Get(ctx, key)
	if !ok {
		t.Fatalf("expected entry")
	}
	if !c.IsFresh(e, 5*time.Minute) {
		t.Fatalf("entry should be fresh")
	}

	clk.Advance(10 * time.Minute)
	e, ok = c.Get(ctx, key)
	if !ok {
		t.Fatalf("stale entry must not be deleted")
	}
	if c.IsFresh(e, 5*time.Minute) {
		t.Fatalf("entry should be stale after ttl")
	}
	if e.Value.Quote.Price != 190 {
		t.Fatalf("unexpected price %v", e.Value.Quote.Price)
	}
}

func TestPriceCacheIsFreshZeroTTL(t *testing.T) {
	c := NewPriceCache()
	e := models.CacheEntry{FetchedAt: time.Now()}
	if c.IsFresh(e, 0) {
		t.Fatalf("zero ttl never fresh")
	}
}

func TestPriceCacheEvictsOldestFetched(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewPriceCache(WithMaxEntries(2))

	c.Put(ctx, models.QuoteKey("B"), quoteValue("B", 2), base.Add(2*time.Second))
	c.Put(ctx, models.QuoteKey("A"), quoteValue("A", 1), base.Add(1*time.Second))
	c.Put(ctx, models.QuoteKey("C"), quoteValue("C", 3), base.Add(3*time.Second))

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get(ctx, models.QuoteKey("A")); ok {
		t.Fatalf("oldest entry A should be evicted")
	}
	for _, k := range []models.Ticker{"B", "C"} {
		if _, ok := c.Get(ctx, models.QuoteKey(k)); !ok {
			t.Fatalf("expected %s to remain", k)
		}
	}
}

func TestPriceCacheOlderPutDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewPriceCache()
	key := models.QuoteKey("MSFT")

	c.Put(ctx, key, quoteValue("MSFT", 400), now)
	c.Put(ctx, key, quoteValue("MSFT", 390), now.Add(-time.Minute))

	e, _ := c.Get(ctx, key)
	if e.Value.Quote.Price != 400 {
		t.Fatalf("older write replaced newer one: %v", e.Value.Quote.Price)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestPriceCacheHistoryAndQuoteKeysAreDistinct(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache()
	series := &models.HistoricalSeries{Ticker: "SPY", Interval: "1d", Range: "6mo"}
	c.Put(ctx, models.HistoryKey("SPY", "1d", "6mo"), models.CachedValue{Series: series}, time.Now())

	if _, ok := c.Get(ctx, models.QuoteKey("SPY")); ok {
		t.Fatalf("quote key must not see history entry")
	}
	if _, ok := c.Get(ctx, models.HistoryKey("SPY", "1d", "1y")); ok {
		t.Fatalf("different range must miss")
	}
	if _, ok := c.Get(ctx, models.HistoryKey("SPY", "1d", "6mo")); !ok {
		t.Fatalf("expected history hit")
	}
}

func TestPriceCacheBackendSurvivesNewInstance(t *testing.T) {
	ctx := context.Background()
	backend := NewRedisBackend(pkgcache.NewMemoryCache(), time.Hour)
	fetched := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := NewPriceCache(WithBackend(backend))
	first.Put(ctx, models.QuoteKey("VOD.L"), quoteValue("VOD.L", 0.71), fetched)

	second := NewPriceCache(WithBackend(backend))
	e, ok := second.Get(ctx, models.QuoteKey("VOD.L"))
	if !ok {
		t.Fatalf("expected backend hit")
	}
	if !e.FetchedAt.Equal(fetched) {
		t.Fatalf("fetchedAt not preserved: %v", e.FetchedAt)
	}
	if e.Value.Quote == nil || e.Value.Quote.Price != 0.71 {
		t.Fatalf("unexpected value %+v", e.Value)
	}
	if second.Len() != 1 {
		t.Fatalf("backend hit should populate local level")
	}
}

func TestPriceCacheConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache(WithMaxEntries(64))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk := models.Ticker(fmt.Sprintf("T%03d", i))
			key := models.QuoteKey(tk)
			c.Put(ctx, key, quoteValue(tk, float64(i)), time.Now())
			c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Fatalf("capacity exceeded: %d", c.Len())
	}
}
