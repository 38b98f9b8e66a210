// Package cache is the result cache with per-category TTLs. It is purely an
// optimization layer: a hit must be behaviorally equivalent to recomputation,
// and an unconfigured backend degrades to a no-op instead of failing callers.
package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
)

// Category selects the key namespace and default TTL.
type Category string

const (
	// CategoryEmbedding caches chunk embeddings (default 7 days).
	CategoryEmbedding Category = "emb"
	// CategoryQuery caches assembled query answers (default 1 hour).
	CategoryQuery Category = "query"
	// CategoryAnalysis caches per-document analyses (default 1 day).
	CategoryAnalysis Category = "analysis"
)

// TTLs holds the per-category expirations.
type TTLs struct {
	Embedding time.Duration
	Query     time.Duration
	Analysis  time.Duration
}

// store is the consumer interface for the cache backend (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Cache wraps a KV backend with category prefixes and TTLs.
// A nil backend yields misses on Get and ErrCacheUnavailable on Set.
type Cache struct {
	store  store
	prefix string
	ttls   TTLs
	logger *zap.Logger
}

// New creates a cache. s may be nil when no backend is configured.
func New(s store, prefix string, ttls TTLs, logger *zap.Logger) *Cache {
	return &Cache{store: s, prefix: prefix, ttls: ttls, logger: logger}
}

// Get returns the cached value and true on a hit.
func (c *Cache) Get(ctx context.Context, cat Category, key string) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	data, err := c.store.Get(ctx, c.key(cat, key))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("cache get failed", zap.String("category", string(cat)), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set stores a value with the category's TTL.
func (c *Cache) Set(ctx context.Context, cat Category, key string, value []byte) error {
	if c.store == nil {
		return domain.ErrCacheUnavailable
	}
	if err := c.store.SetWithTTL(ctx, c.key(cat, key), value, c.ttl(cat)); err != nil {
		return err
	}
	return nil
}

// Delete removes a cached value.
func (c *Cache) Delete(ctx context.Context, cat Category, key string) error {
	if c.store == nil {
		return domain.ErrCacheUnavailable
	}
	return c.store.Del(ctx, c.key(cat, key))
}

func (c *Cache) key(cat Category, key string) string {
	return c.prefix + string(cat) + ":" + key
}

func (c *Cache) ttl(cat Category) time.Duration {
	switch cat {
	case CategoryEmbedding:
		if c.ttls.Embedding > 0 {
			return c.ttls.Embedding
		}
		return 7 * 24 * time.Hour
	case CategoryQuery:
		if c.ttls.Query > 0 {
			return c.ttls.Query
		}
		return time.Hour
	case CategoryAnalysis:
		if c.ttls.Analysis > 0 {
			return c.ttls.Analysis
		}
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
