package lease

import (
	"context"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/statestore"
)

// StoreScanner adapts a statestore.Store into the ExpiredLister port
// ReclaimExpired consumes, via Store.Scan with a lease-expiry filter.
// Reclaim always scans through whatever Store the fabric is configured
// with, regardless of which lease-acquisition backend issued the lease.
type StoreScanner struct {
	Store statestore.Store
}

// ListRetryableFailures returns FAILED records still under the retry
// budget whose backoff, if any, has elapsed by now.
func (s StoreScanner) ListRetryableFailures(ctx context.Context, now time.Time, maxRetries, limit int) ([]statestore.URLRecord, error) {
	return s.Store.Scan(ctx, func(r statestore.URLRecord) bool {
		return r.State == statestore.StateFailed &&
			r.RetryCount < maxRetries &&
			(r.NextEligibleAt == nil || !r.NextEligibleAt.After(now))
	}, limit)
}

func (s StoreScanner) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]string, error) {
	records, err := s.Store.Scan(ctx, func(r statestore.URLRecord) bool {
		return r.State == statestore.StateInProgress &&
			r.LeaseExpiresAt != nil && !r.LeaseExpiresAt.After(now)
	}, limit)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.URLHash
	}
	return hashes, nil
}
