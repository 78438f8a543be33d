package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter local to one process, used when no
// Redis is configured.
type RateLimiter struct {
	window time.Duration
	max    int

	mu     sync.Mutex
	start  time.Time
	counts map[string]int
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 60
	}
	return &RateLimiter{
		window: window,
		max:    max,
		start:  time.Now(),
		counts: make(map[string]int),
	}
}

func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.start) >= l.window {
		l.start = now
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= l.max
}
