package classify_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crawlfabric/crawlfabric/internal/classify"
	"github.com/crawlfabric/crawlfabric/internal/fetch"
)

func TestClassifyStatus_MatchesTaxonomy(t *testing.T) {
	c := classify.ClassifyStatus(fetch.ClassTerminalNotFound, 0, time.Second)
	assert.Equal(t, classify.KindHTTPClientError, c.Kind)
	assert.True(t, c.Permanent)

	c = classify.ClassifyStatus(fetch.ClassRetryableServer, 0, time.Second)
	assert.Equal(t, classify.KindHTTPServerError, c.Kind)
	assert.True(t, c.Retryable)

	c = classify.ClassifyStatus(fetch.ClassRetryableRateLimited, 10*time.Second, time.Second)
	assert.Equal(t, classify.KindRateLimited, c.Kind)
	assert.Equal(t, 10*time.Second, c.SuggestedDelay)
}

func TestShouldRetry_PermanentNeverRetries(t *testing.T) {
	p := classify.DefaultPolicy()
	c := classify.RobotsBlocked()
	assert.False(t, p.ShouldRetry(c, 0))
}

func TestShouldRetry_RespectsMaxRetries(t *testing.T) {
	p := classify.DefaultPolicy()
	p.MaxRetries = 3
	c := classify.Classification{Kind: classify.KindHTTPServerError, Retryable: true}
	assert.True(t, p.ShouldRetry(c, 2))
	assert.False(t, p.ShouldRetry(c, 3))
}

func TestBackoff_NeverBelowOneSecond(t *testing.T) {
	p := classify.DefaultPolicy()
	p.BaseDelay = 10 * time.Millisecond
	p.Jitter = 5 * time.Millisecond
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		d := p.Backoff(i, rng)
		assert.GreaterOrEqual(t, d, time.Second)
	}
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	p := classify.DefaultPolicy()
	p.MaxDelay = 5 * time.Second
	rng := rand.New(rand.NewSource(1))
	d := p.Backoff(20, rng)
	assert.LessOrEqual(t, d, p.MaxDelay+p.Jitter)
}
