package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/domain/repository"
	"PortfolioPulse/pkg/logger"
)

const defaultShards = 32

// slot holds one key. Its mutex serializes every read and write of that key.
type slot struct {
	mu      sync.Mutex
	entry   models.CacheEntry
	present bool
	removed bool
}

type shard struct {
	mu    sync.RWMutex
	slots map[models.CacheKey]*slot
}

// PriceCache is a key-sharded store of the last successful fetch per key.
// Entries are never dropped for age; when the entry count exceeds maxEntries
// the entry with the oldest FetchedAt goes first.
type PriceCache struct {
	shards     []*shard
	maxEntries int
	size       atomic.Int64
	evictMu    sync.Mutex

	backend repository.CacheBackend
	log     *logger.Logger
	metrics repository.Metrics
	now     func() time.Time
}

// Option configures a PriceCache.
type Option func(*PriceCache)

// WithMaxEntries bounds the number of keys held. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *PriceCache) { c.maxEntries = n }
}

// WithShards overrides the shard count.
func WithShards(n int) Option {
	return func(c *PriceCache) {
		if n > 0 {
			c.shards = newShards(n)
		}
	}
}

// WithBackend adds a second level consulted on local misses and written
// through on Put.
func WithBackend(b repository.CacheBackend) Option {
	return func(c *PriceCache) { c.backend = b }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *PriceCache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records evictions and backend activity.
func WithMetrics(m repository.Metrics) Option {
	return func(c *PriceCache) { c.metrics = m }
}

// WithClock replaces time.Now for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *PriceCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewPriceCache creates an empty cache.
func NewPriceCache(opts ...Option) *PriceCache {
	c := &PriceCache{
		shards: newShards(defaultShards),
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newShards(n int) []*shard {
	out := make([]*shard, n)
	for i := range out {
		out[i] = &shard{slots: make(map[models.CacheKey]*slot)}
	}
	return out
}

func (c *PriceCache) shardFor(key models.CacheKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the entry for key regardless of age.
func (c *PriceCache) Get(ctx context.Context, key models.CacheKey) (models.CacheEntry, bool) {
	sh := c.shardFor(key)
	sh.mu.RLock()
	s := sh.slots[key]
	sh.mu.RUnlock()

	if s != nil {
		s.mu.Lock()
		e, ok := s.entry, s.present
		s.mu.Unlock()
		if ok {
			return e, true
		}
	}

	if c.backend == nil {
		return models.CacheEntry{}, false
	}
	e, ok, err := c.backend.Load(ctx, key)
	if err != nil {
		c.log.Warn("price cache: backend load failed", logger.String("key", key.String()), logger.Error(err))
		c.record("backend_error")
		return models.CacheEntry{}, false
	}
	if !ok {
		return models.CacheEntry{}, false
	}
	e.Key = key
	c.record("backend_hit")
	c.store(key, e.Value, e.FetchedAt)
	return e, true
}

// Put records a successful fetch. An older fetchedAt never replaces a newer one.
func (c *PriceCache) Put(ctx context.Context, key models.CacheKey, value models.CachedValue, fetchedAt time.Time) {
	c.store(key, value, fetchedAt)
	if c.backend != nil {
		entry := models.CacheEntry{Key: key, Value: value, FetchedAt: fetchedAt}
		if err := c.backend.Store(ctx, entry); err != nil {
			c.log.Warn("price cache: backend store failed", logger.String("key", key.String()), logger.Error(err))
			c.record("backend_error")
		}
	}
}

// IsFresh reports whether entry is younger than ttl.
func (c *PriceCache) IsFresh(entry models.CacheEntry, ttl time.Duration) bool {
	if ttl <= 0 || entry.FetchedAt.IsZero() {
		return false
	}
	return entry.Age(c.now()) < ttl
}

// Len is the current number of keys.
func (c *PriceCache) Len() int { return int(c.size.Load()) }

func (c *PriceCache) store(key models.CacheKey, value models.CachedValue, fetchedAt time.Time) {
	sh := c.shardFor(key)
	for {
		sh.mu.Lock()
		s, ok := sh.slots[key]
		if !ok {
			s = &slot{}
			sh.slots[key] = s
		}
		sh.mu.Unlock()

		s.mu.Lock()
		if s.removed {
			// evicted between lookup and lock; take a fresh slot
			s.mu.Unlock()
			continue
		}
		if s.present && fetchedAt.Before(s.entry.FetchedAt) {
			s.mu.Unlock()
			return
		}
		if !s.present {
			s.present = true
			c.size.Add(1)
		}
		s.entry = models.CacheEntry{Key: key, Value: value, FetchedAt: fetchedAt}
		s.mu.Unlock()
		break
	}

	if c.maxEntries > 0 && c.size.Load() > int64(c.maxEntries) {
		c.evict()
	}
}

// evict removes oldest-fetched entries until the cache is within capacity.
func (c *PriceCache) evict() {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	for c.size.Load() > int64(c.maxEntries) {
		victim, at, ok := c.oldest()
		if !ok {
			return
		}
		sh := c.shardFor(victim)
		sh.mu.Lock()
		s := sh.slots[victim]
		if s != nil {
			s.mu.Lock()
			if s.present && s.entry.FetchedAt.Equal(at) {
				delete(sh.slots, victim)
				s.present = false
				s.removed = true
				c.size.Add(-1)
				c.record("evict")
			}
			s.mu.Unlock()
		}
		sh.mu.Unlock()
	}
}

func (c *PriceCache) oldest() (models.CacheKey, time.Time, bool) {
	var (
		key   models.CacheKey
		at    time.Time
		found bool
	)
	for _, sh := range c.shards {
		sh.mu.RLock()
		for k, s := range sh.slots {
			s.mu.Lock()
			if s.present && (!found || s.entry.FetchedAt.Before(at)) {
				key, at, found = k, s.entry.FetchedAt, true
			}
			s.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return key, at, found
}

func (c *PriceCache) record(event string) {
	if c.metrics != nil {
		c.metrics.RecordCache(event)
	}
}

var _ repository.PriceCache = (*PriceCache)(nil)
