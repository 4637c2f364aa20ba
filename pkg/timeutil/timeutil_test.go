package timeutil

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMaxDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), MaxDuration(nil))
	assert.Equal(t, 3*time.Second, MaxDuration([]time.Duration{time.Second, 3 * time.Second, 2 * time.Second}))
	assert.Equal(t, 5*time.Millisecond, MaxDuration([]time.Duration{5 * time.Millisecond}))
}

func TestDurationPtr(t *testing.T) {
	p := DurationPtr(90 * time.Second)
	assert.NotNil(t, p)
	assert.Equal(t, 90*time.Second, *p)
}

func TestExponentialBackoffDelay_GrowsAndCaps(t *testing.T) {
	bp := NewBackoffParam(time.Second, 2.0, 10*time.Second)
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, 1*time.Second, ExponentialBackoffDelay(1, 0, *rng, bp))
	assert.Equal(t, 2*time.Second, ExponentialBackoffDelay(2, 0, *rng, bp))
	assert.Equal(t, 4*time.Second, ExponentialBackoffDelay(3, 0, *rng, bp))
	assert.Equal(t, 8*time.Second, ExponentialBackoffDelay(4, 0, *rng, bp))
	// attempt 5 would be 16s uncapped; the ceiling holds it at 10s
	assert.Equal(t, 10*time.Second, ExponentialBackoffDelay(5, 0, *rng, bp))
	assert.Equal(t, 10*time.Second, ExponentialBackoffDelay(20, 0, *rng, bp))
}

func TestExponentialBackoffDelay_AttemptFloor(t *testing.T) {
	bp := NewBackoffParam(2*time.Second, 3.0, time.Minute)
	rng := rand.New(rand.NewSource(1))

	// Attempts below 1 are treated as the first attempt.
	assert.Equal(t, 2*time.Second, ExponentialBackoffDelay(0, 0, *rng, bp))
	assert.Equal(t, 2*time.Second, ExponentialBackoffDelay(-3, 0, *rng, bp))
}

func TestExponentialBackoffDelay_JitterBounds(t *testing.T) {
	bp := NewBackoffParam(time.Second, 2.0, time.Minute)
	jitter := 500 * time.Millisecond
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		d := ExponentialBackoffDelay(2, jitter, *rng, bp)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2*time.Second+jitter)
	}
}

func TestExponentialBackoffDelay_JitterSpread(t *testing.T) {
	bp := NewBackoffParam(time.Second, 1.0, time.Minute)
	jitter := 200 * time.Millisecond
	rng := rand.New(rand.NewSource(7))

	var sum int64
	lo, hi := jitter, time.Duration(0)
	for i := 0; i < 5000; i++ {
		extra := ExponentialBackoffDelay(1, jitter, *rng, bp) - time.Second
		sum += int64(extra)
		if extra < lo {
			lo = extra
		}
		if extra > hi {
			hi = extra
		}
	}
	avg := time.Duration(sum / 5000)

	// Uniform jitter should span close to [0, jitter) with a midpoint mean.
	assert.Less(t, lo, 5*time.Millisecond)
	assert.Greater(t, hi, jitter-5*time.Millisecond)
	assert.InDelta(t, float64(jitter/2), float64(avg), float64(jitter/10))
}

func TestNewBackoffParam_ClampsShrinkingMultiplier(t *testing.T) {
	bp := NewBackoffParam(time.Second, 0.5, time.Minute)
	rng := rand.New(rand.NewSource(1))

	// With the multiplier clamped to 1 the delay never decays below initial.
	assert.Equal(t, time.Second, ExponentialBackoffDelay(5, 0, *rng, bp))
}

func TestRealSleeper_NonPositiveReturnsImmediately(t *testing.T) {
	s := NewRealSleeper()
	start := time.Now()
	s.Sleep(0)
	s.Sleep(-time.Second)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
