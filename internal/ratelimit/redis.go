package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCoordinator is the production Coordinator: one INCR per admitted
// request against a key namespaced by domain and the current second,
// letting every worker process in the fleet share one sliding window.
// Bucket keys are set to expire after window+grace seconds so old seconds
// evaporate without an explicit cleanup pass.
type RedisCoordinator struct {
	client *redis.Client
	prefix string
	limits Limits
	now    func() time.Time
}

// NewRedisCoordinator constructs a RedisCoordinator over client, namespaced
// under prefix (e.g. "crawlfabric:rate:").
func NewRedisCoordinator(client *redis.Client, prefix string, limits Limits) *RedisCoordinator {
	return &RedisCoordinator{client: client, prefix: prefix, limits: limits, now: time.Now}
}

func (c *RedisCoordinator) bucketKey(domain string, second int64) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, domain, second)
}

// Check sums the last WindowSeconds bucket keys via a pipelined MGET and
// compares against the domain's QPS limit times the window width.
func (c *RedisCoordinator) Check(ctx context.Context, domain string) (bool, error) {
	nowUnix := c.now().Unix()
	keys := make([]string, WindowSeconds)
	for i := 0; i < WindowSeconds; i++ {
		keys[i] = c.bucketKey(domain, nowUnix-int64(i))
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return false, err
	}
	var sum int64
	for _, v := range values {
		if v == nil {
			continue
		}
		switch n := v.(type) {
		case string:
			var count int64
			fmt.Sscanf(n, "%d", &count)
			sum += count
		}
	}
	limit := int64(c.limits.QPS(domain) * WindowSeconds)
	return sum < limit, nil
}

// Record increments the current second's bucket for domain and sets its
// TTL only on first creation (INCR returning 1), so a hot bucket doesn't
// have its expiry pushed out on every subsequent increment.
func (c *RedisCoordinator) Record(ctx context.Context, domain string) error {
	key := c.bucketKey(domain, c.now().Unix())
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		c.client.Expire(ctx, key, (WindowSeconds+GraceSeconds)*time.Second)
	}
	return nil
}

// NextAllowedAt scans backward from the oldest bucket in the window to
// find the first non-empty one and returns its expiry.
func (c *RedisCoordinator) NextAllowedAt(ctx context.Context, domain string) (time.Time, error) {
	nowUnix := c.now().Unix()
	for i := WindowSeconds - 1; i >= 0; i-- {
		sec := nowUnix - int64(i)
		val, err := c.client.Get(ctx, c.bucketKey(domain, sec)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		if val != "" && val != "0" {
			return time.Unix(sec+WindowSeconds, 0), nil
		}
	}
	return c.now(), nil
}
