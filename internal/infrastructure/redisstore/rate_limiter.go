package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront-go/storefront/internal/observability"
)

// RateLimiter is a fixed-window counter shared across instances. The window
// key carries the window start so entries expire on their own.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
	log    observability.Logger
}

func NewRateLimiter(client *redis.Client, window time.Duration, max int, logger observability.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 60
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RateLimiter{
		client: client,
		window: window,
		max:    int64(max),
		log:    logger.With(observability.F("component", "rate_limiter")),
	}
}

// Allow reports whether the caller identified by key may proceed. Redis
// trouble fails open: throttling is protection, not an availability
// dependency.
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	windowStart := time.Now().Truncate(l.window).Unix()
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("rate_limit_check_failed", observability.F("error", err.Error()))
		return true
	}
	return incr.Val() <= l.max
}
