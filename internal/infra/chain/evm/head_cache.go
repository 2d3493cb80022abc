package evm

import (
	"context"
	"sync"
	"time"
)

// HeadCache caches the chain head so receipt lookups made between two polls
// do not each cost an eth_blockNumber call.
type HeadCache struct {
	fetch func(ctx context.Context) (uint64, error)
	ttl   time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a head cache with the given TTL.
func NewHeadCache(fetch func(ctx context.Context) (uint64, error), ttl time.Duration) *HeadCache {
	return &HeadCache{
		fetch: fetch,
		ttl:   ttl,
	}
}

// Latest returns the cached head if within TTL, otherwise fetches fresh.
func (c *HeadCache) Latest(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}
	c.Set(head)
	return head, nil
}

// Set records a head observed elsewhere, e.g. by the block poller.
func (c *HeadCache) Set(head uint64) {
	c.mu.Lock()
	if head >= c.cached || time.Since(c.cachedAt) >= c.ttl {
		c.cached = head
	}
	c.cachedAt = time.Now()
	c.mu.Unlock()
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
