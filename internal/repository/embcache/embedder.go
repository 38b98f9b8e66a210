// Package embcache caches embeddings in the result cache.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/repository/cache"
)

// resultCache is the consumer interface for the embedding cache (ISP).
type resultCache interface {
	Get(ctx context.Context, cat cache.Category, key string) ([]byte, bool)
	Set(ctx context.Context, cat cache.Category, key string, value []byte) error
}

// CachedEmbedder is a decorator that memoizes embeddings. The key is a
// digest of the full chunk text: two distinct chunks can never collide on a
// shared prefix.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      resultCache
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	c resultCache,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, cacheTotal: cacheTotal, logger: logger}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)

	if data, ok := c.cache.Get(ctx, cache.CategoryEmbedding, key); ok {
		if vec, err := bytesToVector(data); err == nil {
			c.incCache("hit")
			return domain.EmbeddingResult{Embedding: vec}, nil
		}
		c.logger.Warn("failed to parse cached embedding", zap.String("key", key))
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if err := c.cache.Set(ctx, cache.CategoryEmbedding, key, vectorToBytes(result.Embedding)); err != nil {
		if !errors.Is(err, domain.ErrCacheUnavailable) {
			c.logger.Warn("failed to cache embedding", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
