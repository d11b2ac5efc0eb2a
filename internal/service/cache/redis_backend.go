package cache

import (
	"context"
	"errors"
	"time"

	"PortfolioPulse/internal/domain/models"
	"PortfolioPulse/internal/domain/repository"
	pkgcache "PortfolioPulse/pkg/cache"
)

// RedisBackend persists price cache entries in a pkg/cache Service so stale
// fallbacks survive restarts. Keys expire after retention; that is a storage
// bound, not a freshness rule.
type RedisBackend struct {
	svc       pkgcache.Service
	retention time.Duration
}

// NewRedisBackend wraps svc. retention <= 0 keeps entries forever.
func NewRedisBackend(svc pkgcache.Service, retention time.Duration) *RedisBackend {
	return &RedisBackend{svc: svc, retention: retention}
}

func backendKey(key models.CacheKey) string {
	return pkgcache.GenerateKeyWithParams("price", string(key.Kind), string(key.Ticker), key.Params)
}

func (b *RedisBackend) Load(ctx context.Context, key models.CacheKey) (models.CacheEntry, bool, error) {
	var e models.CacheEntry
	if err := b.svc.Get(ctx, backendKey(key), &e); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, err
	}
	e.Key = key
	return e, true, nil
}

func (b *RedisBackend) Store(ctx context.Context, entry models.CacheEntry) error {
	return b.svc.Set(ctx, backendKey(entry.Key), entry, b.retention)
}

var _ repository.CacheBackend = (*RedisBackend)(nil)
