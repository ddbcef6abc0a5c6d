package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront_cache:"

// RedisCache shares cached responses between storefront instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	stat   *Stat
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		stat:   NewStat("redis", nil),
	}
}

// NewRedisCacheWithURL creates a Redis cache from a redis:// URL
func NewRedisCacheWithURL(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisCache(redis.NewClient(opt), ttl), nil
}

// Take implements Cache. Redis failures fall back to the loader; the cache
// is optional and never fails a read on its own.
func (c *RedisCache) Take(ctx context.Context, namespace, key string, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	cacheKey := redisKeyPrefix + makeKey(namespace, key)

	cached, err := c.client.GetEx(ctx, cacheKey, c.ttl).Bytes()
	if err == nil {
		c.stat.IncrementHit()
		return cached, nil
	}
	if err != redis.Nil {
		log.Printf("[Storefront Cache redis] get %s failed: %v", cacheKey, err)
		return loader(ctx)
	}

	c.stat.IncrementMiss()
	data, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		log.Printf("[Storefront Cache redis] set %s failed: %v", cacheKey, err)
	}
	return data, nil
}

// Stat returns the hit/miss tracker
func (c *RedisCache) Stat() *Stat {
	return c.stat
}

var _ Cache = (*RedisCache)(nil)
