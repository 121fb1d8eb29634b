package scriptlet

import (
	"context"
	"sync"
)

// ResultCache stores evaluation results keyed by (code, input) fingerprint.
// Implementations must be safe for concurrent use; internal/cache provides a
// Redis-backed implementation for sharing results across processes.
type ResultCache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any)
}

// MemoryCache is a bounded in-process ResultCache that evicts the oldest
// entry on overflow.
type MemoryCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]any
	fifo    []string
}

// NewMemoryCache creates a MemoryCache holding at most limit entries.
func NewMemoryCache(limit int) *MemoryCache {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryCache{
		limit:   limit,
		entries: make(map[string]any, limit),
	}
}

// Get returns the cached value for key.
func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	return value, ok
}

// Set stores value under key, evicting the oldest entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = value
		return
	}
	if len(c.fifo) >= c.limit {
		oldest := c.fifo[0]
		c.fifo = c.fifo[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = value
	c.fifo = append(c.fifo, key)
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
