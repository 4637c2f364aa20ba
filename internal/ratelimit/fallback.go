package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/obslog"
)

// FailOpenCoordinator wraps a primary Coordinator (normally RedisCoordinator)
// and degrades to a local, per-worker fallback of at most one request per
// domain per second whenever the primary is unreachable: admit and log a
// warning rather than block crawling
// on a coordination-fabric outage.
type FailOpenCoordinator struct {
	primary Coordinator
	log     *obslog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewFailOpenCoordinator wraps primary with the fail-open fallback.
func NewFailOpenCoordinator(primary Coordinator, log *obslog.Logger) *FailOpenCoordinator {
	return &FailOpenCoordinator{primary: primary, log: log, lastSeen: make(map[string]time.Time)}
}

// Check delegates to the primary coordinator; on error it fails open,
// applying the local one-per-second-per-domain fallback instead of
// denying outright.
func (c *FailOpenCoordinator) Check(ctx context.Context, domain string) (bool, error) {
	admitted, err := c.primary.Check(ctx, domain)
	if err == nil {
		return admitted, nil
	}
	c.log.Error(obslog.CauseRateLimited, "ratelimit", "check_degraded", err, obslog.Fields{"domain": domain})
	return c.localFallbackAdmit(domain), nil
}

// Record delegates to the primary; a failure there is logged, stamped into
// the local fallback window, and otherwise swallowed since recording has no
// user-visible effect on its own.
func (c *FailOpenCoordinator) Record(ctx context.Context, domain string) error {
	if err := c.primary.Record(ctx, domain); err != nil {
		c.log.Error(obslog.CauseRateLimited, "ratelimit", "record_degraded", err, obslog.Fields{"domain": domain})
		c.mu.Lock()
		c.lastSeen[domain] = time.Now()
		c.mu.Unlock()
	}
	return nil
}

func (c *FailOpenCoordinator) NextAllowedAt(ctx context.Context, domain string) (time.Time, error) {
	t, err := c.primary.NextAllowedAt(ctx, domain)
	if err == nil {
		return t, nil
	}
	c.mu.Lock()
	last := c.lastSeen[domain]
	c.mu.Unlock()
	return last.Add(time.Second), nil
}

func (c *FailOpenCoordinator) localFallbackAdmit(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	last, ok := c.lastSeen[domain]
	if ok && now.Sub(last) < time.Second {
		return false
	}
	return true
}
