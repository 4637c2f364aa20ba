package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a shared, cross-process implementation of the Cache port,
// letting multiple worker processes reuse one robots.txt fetch per domain
// instead of each maintaining an isolated in-memory cache.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps client as a Cache, namespacing all keys under prefix
// and expiring entries after ttl.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(key string) (string, bool) {
	val, err := c.client.Get(context.Background(), c.prefix+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Put(key string, value string) {
	c.client.Set(context.Background(), c.prefix+key, value, c.ttl)
}
