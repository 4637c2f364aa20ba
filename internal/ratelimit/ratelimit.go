// Package ratelimit implements the per-domain sliding-window QPS
// admission coordinator. State is a per-domain array of 1-second counter
// buckets covering the last N=60 seconds; each
// bucket auto-expires after window+grace so old buckets evaporate without
// an explicit cleanup pass.
package ratelimit

import (
	"context"
	"time"
)

// Limits resolves the admitted rate for a domain: the per-domain override
// if configured, else the fabric default.
type Limits struct {
	DefaultQPS float64
	Overrides  map[string]float64
}

// QPS returns the QPS limit that applies to domain.
func (l Limits) QPS(domain string) float64 {
	if v, ok := l.Overrides[domain]; ok {
		return v
	}
	return l.DefaultQPS
}

// Coordinator is the admission port: check admission, record an admitted request,
// and report when the window will next free a slot. check and record are
// always called separately by the worker loop: check first, record only
// on admission.
type Coordinator interface {
	Check(ctx context.Context, domain string) (bool, error)
	Record(ctx context.Context, domain string) error
	NextAllowedAt(ctx context.Context, domain string) (time.Time, error)
}

// WindowSeconds is N, the sliding window width in one-second buckets.
const WindowSeconds = 60

// GraceSeconds widens each bucket's TTL past the window so a bucket that
// is still being read as "the oldest in the window" hasn't evaporated out
// from under a concurrent Check.
const GraceSeconds = 5
