package keyset

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores raw key-set documents by URL. A ttl of zero keeps the document until it
// is overwritten.
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Set(ctx context.Context, url string, doc []byte, ttl time.Duration)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache returns an in-process document cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryCache) Get(_ context.Context, url string) ([]byte, bool) {
	v, ok := m.c.Get(url)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *MemoryCache) Set(_ context.Context, url string, doc []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(url, append([]byte(nil), doc...), ttl)
}

// RedisCache shares fetched documents between replicas so that a fleet performs one
// identity-provider round trip per freshness window instead of one per process.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisCache returns a Cache storing documents under prefix+url.
func NewRedisCache(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisCache {
	if prefix == "" {
		prefix = "jobauth:jwks:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, url string) ([]byte, bool) {
	if r == nil || r.client == nil {
		return nil, false
	}
	b, err := r.client.Get(ctx, r.prefix+url).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("jwks cache read failed", zap.String("url", url), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

func (r *RedisCache) Set(ctx context.Context, url string, doc []byte, ttl time.Duration) {
	if r == nil || r.client == nil {
		return
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+url, doc, ttl).Err(); err != nil {
		r.logger.Warn("jwks cache write failed", zap.String("url", url), zap.Error(err))
	}
}
