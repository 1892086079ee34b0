package routing

import (
	"context"
	"sync"
	"time"
)

// CachedRoute is a cached driving segment with its fetch time.
type CachedRoute struct {
	Segment   RouteSegment `json:"segment"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// RouteCache stores driving segments by grid key. Get returns nil, nil on a
// miss. Set keeps the entry for at least retention.
type RouteCache interface {
	Get(ctx context.Context, key string) (*CachedRoute, error)
	Set(ctx context.Context, key string, entry CachedRoute, retention time.Duration) error
}

// MemoryCache is an in-process RouteCache with periodic cleanup of entries
// past their retention.
type MemoryCache struct {
	mu              sync.RWMutex
	entries         map[string]memoryEntry
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

type memoryEntry struct {
	route    CachedRoute
	expireAt time.Time
}

// NewMemoryCache creates a MemoryCache. A zero cleanupInterval uses 5 minutes.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}
	return &MemoryCache{
		entries:         make(map[string]memoryEntry),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Get implements RouteCache.
func (c *MemoryCache) Get(_ context.Context, key string) (*CachedRoute, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expireAt) {
		return nil, nil
	}
	route := e.route
	return &route, nil
}

// Set implements RouteCache.
func (c *MemoryCache) Set(_ context.Context, key string, entry CachedRoute, retention time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{route: entry, expireAt: c.now().Add(retention)}
	c.cleanupLocked()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// cleaned up.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes every entry.
func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}

func (c *MemoryCache) cleanupLocked() {
	now := c.now()
	if now.Sub(c.lastCleanup) < c.cleanupInterval {
		return
	}
	c.lastCleanup = now
	for key, e := range c.entries {
		if now.After(e.expireAt) {
			delete(c.entries, key)
		}
	}
}

var _ RouteCache = (*MemoryCache)(nil)
