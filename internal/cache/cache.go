// Package cache provides loader caches for encoded storefront responses
// (product listings, search results).
package cache

import "context"

// Cache is a read-through cache for []byte values
type Cache interface {
	// Take returns the cached value for namespace:key. On a miss it calls
	// loader, caches the result and returns it. Loader errors are not cached.
	Take(ctx context.Context, namespace, key string, loader func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// NoOpCache always calls the loader
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) Take(ctx context.Context, namespace, key string, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return loader(ctx)
}

func makeKey(namespace, key string) string {
	return namespace + ":" + key
}
