package memory

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// ListCache is a process-local stand-in for the Redis listing cache.
type ListCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewListCache() *ListCache {
	return &ListCache{entries: make(map[string]cacheEntry)}
}

func (c *ListCache) Get(ctx context.Context, key string) ([]byte, bool) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *ListCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	_ = ctx
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
}
