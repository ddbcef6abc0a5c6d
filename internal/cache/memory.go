package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hkloudou/storefront/internal/trace"
	"github.com/hkloudou/storefront/internal/xsync"
)

// MemoryCache is an in-process Cache with a fixed TTL
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]*cacheEntry
	ttl    time.Duration
	flight xsync.SingleFlight[[]byte]
	stat   *Stat
	now    func() time.Time
}

type cacheEntry struct {
	value      []byte
	expireTime time.Time
}

// NewMemoryCache creates a memory cache. Call Run to evict expired entries
// in the background; without it they are replaced lazily on access.
func NewMemoryCache(name string, ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		data:   make(map[string]*cacheEntry),
		ttl:    ttl,
		flight: xsync.NewSingleFlight[[]byte](),
		now:    time.Now,
	}
	c.stat = NewStat(name, c.Len)
	return c
}

// Take implements Cache. Concurrent misses for one key share a single load,
// which runs on a context detached from any one caller's cancellation.
func (c *MemoryCache) Take(ctx context.Context, namespace, key string, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	tr := trace.FromContext(ctx)
	cacheKey := makeKey(namespace, key)

	if value, ok := c.lookup(cacheKey); ok {
		c.stat.IncrementHit()
		tr.RecordSpan("MemoryCache.Hit", map[string]any{"key": cacheKey, "size": len(value)})
		return value, nil
	}

	return c.flight.DoContext(ctx, cacheKey, func(ctx context.Context) ([]byte, error) {
		// Another caller may have filled it while we waited
		if value, ok := c.lookup(cacheKey); ok {
			c.stat.IncrementHit()
			return value, nil
		}
		c.stat.IncrementMiss()
		tr.RecordSpan("MemoryCache.Miss", map[string]any{"key": cacheKey})

		data, err := loader(ctx)
		if err != nil {
			tr.RecordSpan("MemoryCache.LoaderFailed", map[string]any{"error": err.Error()})
			return nil, err
		}

		c.mu.Lock()
		c.data[cacheKey] = &cacheEntry{value: data, expireTime: c.now().Add(c.ttl)}
		c.mu.Unlock()

		tr.RecordSpan("MemoryCache.Loaded", map[string]any{"size": len(data)})
		return data, nil
	})
}

func (c *MemoryCache) lookup(cacheKey string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[cacheKey]
	if !ok || !c.now().Before(entry.expireTime) {
		return nil, false
	}
	return entry.value, true
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stat returns the hit/miss tracker
func (c *MemoryCache) Stat() *Stat {
	return c.stat
}

// Run evicts expired entries every interval until ctx is done
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *MemoryCache) cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.data {
		if !now.Before(entry.expireTime) {
			delete(c.data, key)
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
