package concurrency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlfabric/crawlfabric/internal/concurrency"
)

func TestAcquire_GlobalCapBounds(t *testing.T) {
	m := concurrency.NewManager(2, 10, nil)
	ctx := context.Background()

	t1, err := m.Acquire(ctx, "a.com")
	require.NoError(t, err)
	t2, err := m.Acquire(ctx, "b.com")
	require.NoError(t, err)

	acquired := int32(0)
	go func() {
		tok, err := m.Acquire(ctx, "c.com")
		if err == nil {
			atomic.StoreInt32(&acquired, 1)
			tok.Release()
		}
	}()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&acquired), "third acquire should block while global cap is full")

	t1.Release()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&acquired))
	t2.Release()
}

func TestAcquire_PerDomainCapBoundsIndependentlyOfGlobal(t *testing.T) {
	m := concurrency.NewManager(10, 1, nil)
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "a.com")
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctxTimeout, "a.com")
	assert.Error(t, err, "second acquire on same domain should block past the per-domain cap")

	tok.Release()
}

func TestSweepIdleDomains_RemovesOnlyUnheldSemaphores(t *testing.T) {
	m := concurrency.NewManager(10, 10, nil)
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "held.com")
	require.NoError(t, err)
	tok2, err := m.Acquire(ctx, "idle.com")
	require.NoError(t, err)
	tok2.Release()

	removed := m.SweepIdleDomains()
	assert.Equal(t, 1, removed)

	tok.Release()
}

func TestRunWithTimeout_CountsSlowTaskAsFailure(t *testing.T) {
	m := concurrency.NewManager(4, 4, nil)
	err := m.RunWithTimeout(context.Background(), "slow.com", 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	assert.Error(t, err)
}

func TestManager_ConcurrentAccessIsSafe(t *testing.T) {
	m := concurrency.NewManager(8, 4, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			domain := "domain.com"
			tok, err := m.Acquire(context.Background(), domain)
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			tok.Release()
		}(i)
	}
	wg.Wait()
	stats := m.Snapshot()
	assert.Equal(t, int64(0), stats.ActiveTasks)
}
