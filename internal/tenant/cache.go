package tenant

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local TTL cache used when no Redis backend is
// configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     *Context
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a cached context if present and not expired.
func (c *MemoryCache) Get(_ context.Context, host string) (*Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[host]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, host)
		return nil, false
	}
	return entry.value, true
}

// Set stores a context until the TTL elapses.
func (c *MemoryCache) Set(_ context.Context, host string, value *Context, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[host] = memoryEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}
