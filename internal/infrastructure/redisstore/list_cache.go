package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront-go/storefront/internal/observability"
)

// ListCache stores serialized listing pages in Redis. Both sides are best
// effort: failures degrade to repository reads, never to request errors.
type ListCache struct {
	client *redis.Client
	log    observability.Logger
}

func NewListCache(client *redis.Client, logger observability.Logger) *ListCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ListCache{client: client, log: logger.With(observability.F("component", "list_cache"))}
}

func (c *ListCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache_get_failed", observability.F("key", key), observability.F("error", err.Error()))
		}
		return nil, false
	}
	return raw, true
}

func (c *ListCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn("cache_set_failed", observability.F("key", key), observability.F("error", err.Error()))
	}
}
