package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCoordinator(t *testing.T, limits Limits) (*RedisCoordinator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCoordinator(client, "test:rate:", limits), mr
}

func TestRedisCoordinator_AdmitsUnderLimit(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCoordinator(t, Limits{DefaultQPS: 1})

	admitted, err := c.Check(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, admitted)

	require.NoError(t, c.Record(ctx, "example.com"))

	admitted, err = c.Check(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestRedisCoordinator_DeniesAtWindowBudget(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCoordinator(t, Limits{DefaultQPS: 1})

	// Fill the whole 60-request budget within the current window.
	for i := 0; i < WindowSeconds; i++ {
		require.NoError(t, c.Record(ctx, "example.com"))
	}

	admitted, err := c.Check(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestRedisCoordinator_DomainsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCoordinator(t, Limits{DefaultQPS: 1})

	for i := 0; i < WindowSeconds; i++ {
		require.NoError(t, c.Record(ctx, "busy.com"))
	}

	admitted, err := c.Check(ctx, "quiet.com")
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestRedisCoordinator_OverrideRaisesBudget(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCoordinator(t, Limits{DefaultQPS: 1, Overrides: map[string]float64{"big.com": 10}})

	for i := 0; i < WindowSeconds; i++ {
		require.NoError(t, c.Record(ctx, "big.com"))
	}

	admitted, err := c.Check(ctx, "big.com")
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestRedisCoordinator_BucketsExpireAndFreeTheWindow(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCoordinator(t, Limits{DefaultQPS: 1})

	for i := 0; i < WindowSeconds; i++ {
		require.NoError(t, c.Record(ctx, "example.com"))
	}
	admitted, err := c.Check(ctx, "example.com")
	require.NoError(t, err)
	require.False(t, admitted)

	// Let every bucket key pass window+grace so Redis evicts them, and
	// move the coordinator's clock past the window.
	mr.FastForward((WindowSeconds + GraceSeconds + 1) * time.Second)
	base := time.Now().Add((WindowSeconds + GraceSeconds + 1) * time.Second)
	c.now = func() time.Time { return base }

	admitted, err = c.Check(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestRedisCoordinator_NextAllowedAt(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCoordinator(t, Limits{DefaultQPS: 1})

	// Empty window: no waiting.
	at, err := c.NextAllowedAt(ctx, "example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), at, time.Second)

	require.NoError(t, c.Record(ctx, "example.com"))

	at, err = c.NextAllowedAt(ctx, "example.com")
	require.NoError(t, err)
	// The only non-empty bucket is the current second; it frees once it
	// slides out of the window.
	assert.WithinDuration(t, time.Now().Add(WindowSeconds*time.Second), at, 2*time.Second)
}
