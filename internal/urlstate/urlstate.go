// Package urlstate implements the typed state machine layered on top
// of statestore.Store's single atomic primitive (UpdateIf). Every
// permitted transition is one function here; none of them allow
// a caller to skip IN_PROGRESS, and every transition is guarded by a
// conditional update on the stored record.
package urlstate

import (
	"context"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/statestore"
)

// Manager wraps a statestore.Store with the permitted transitions. It
// holds no state of its own; it is safe to construct one per call site.
type Manager struct {
	store statestore.Store
}

// New constructs a Manager over store.
func New(store statestore.Store) *Manager {
	return &Manager{store: store}
}

// Acquire attempts PENDING --acquire--> IN_PROGRESS, creating the record
// first if absent. It grants the lease to holder until now+ttl. Returns
// false (no error) if another worker already holds an unexpired lease, or
// the record is not in a state that can be acquired.
func (m *Manager) Acquire(ctx context.Context, urlHash, rawURL, domain, holder string, ttl time.Duration, now time.Time) (bool, error) {
	_, err := m.store.PutIfAbsent(ctx, statestore.URLRecord{
		URLHash: urlHash,
		URL:     rawURL,
		Domain:  domain,
		State:   statestore.StatePending,
	})
	if err != nil {
		return false, err
	}

	expires := now.Add(ttl)
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			if cur.State != statestore.StatePending {
				return false
			}
			if cur.LeaseHolder != "" && cur.LeaseExpiresAt != nil && cur.LeaseExpiresAt.After(now) {
				return false
			}
			if cur.NextEligibleAt != nil && cur.NextEligibleAt.After(now) {
				return false
			}
			return true
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StateInProgress
			cur.LeaseHolder = holder
			cur.LeaseAcquiredAt = &now
			cur.LeaseExpiresAt = &expires
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Extend renews the lease on urlHash, predicated on holder still owning
// an in-progress lease.
func (m *Manager) Extend(ctx context.Context, urlHash, holder string, additionalTTL time.Duration, now time.Time) (bool, error) {
	expires := now.Add(additionalTTL)
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateInProgress && cur.LeaseHolder == holder
		},
		func(cur *statestore.URLRecord) {
			cur.LeaseExpiresAt = &expires
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Complete performs IN_PROGRESS --complete--> DONE. rawBlobKey must be
// non-empty per invariant 4 (DONE implies raw_blob_key set).
func (m *Manager) Complete(ctx context.Context, urlHash, holder, rawBlobKey, parsedBlobKey string, now time.Time) (bool, error) {
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateInProgress && cur.LeaseHolder == holder
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StateDone
			cur.LeaseHolder = ""
			cur.LeaseAcquiredAt = nil
			cur.LeaseExpiresAt = nil
			cur.RawBlobKey = rawBlobKey
			if parsedBlobKey != "" {
				cur.ParsedBlobKey = parsedBlobKey
			}
			cur.LastCrawledAt = &now
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Fail performs IN_PROGRESS --fail--> FAILED, incrementing retry_count and
// recording last_error. When nextEligibleAt is non-nil, a later Retry call
// will not be able to re-acquire until that instant (enforced by Acquire's
// NextEligibleAt predicate).
func (m *Manager) Fail(ctx context.Context, urlHash, holder, lastError string, nextEligibleAt *time.Time) (bool, error) {
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateInProgress && cur.LeaseHolder == holder
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StateFailed
			cur.LeaseHolder = ""
			cur.LeaseAcquiredAt = nil
			cur.LeaseExpiresAt = nil
			cur.LastError = lastError
			cur.RetryCount++
			cur.NextEligibleAt = nextEligibleAt
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// ReleaseToPending performs IN_PROGRESS --release--> PENDING for a lease
// this holder still owns, used by the worker loop's rate-limit admission
// backoff: the URL goes back to the front of the
// queue without being charged a retry_count or last_error, unlike Fail.
func (m *Manager) ReleaseToPending(ctx context.Context, urlHash, holder string) (bool, error) {
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateInProgress && cur.LeaseHolder == holder
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StatePending
			cur.LeaseHolder = ""
			cur.LeaseAcquiredAt = nil
			cur.LeaseExpiresAt = nil
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Reclaim performs IN_PROGRESS --reclaim--> PENDING for a record whose
// lease has expired as of now. Idempotent: re-running reclaim on an
// already-reclaimed record finds state != IN_PROGRESS and is a no-op.
func (m *Manager) Reclaim(ctx context.Context, urlHash string, now time.Time) (bool, error) {
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateInProgress &&
				cur.LeaseExpiresAt != nil && !cur.LeaseExpiresAt.After(now)
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StatePending
			cur.LeaseHolder = ""
			cur.LeaseAcquiredAt = nil
			cur.LeaseExpiresAt = nil
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Retry performs FAILED --retry--> PENDING when retry_count is still below
// maxRetries. It is the caller's job to only invoke this after the record's
// NextEligibleAt delay has elapsed.
func (m *Manager) Retry(ctx context.Context, urlHash string, maxRetries int) (bool, error) {
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateFailed && cur.RetryCount < maxRetries
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StatePending
			cur.NextEligibleAt = nil
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Recrawl performs DONE --recrawl--> PENDING for re-seeding callers.
func (m *Manager) Recrawl(ctx context.Context, urlHash string) (bool, error) {
	applied, err := m.store.UpdateIf(ctx, urlHash,
		func(cur statestore.URLRecord) bool {
			return cur.State == statestore.StateDone
		},
		func(cur *statestore.URLRecord) {
			cur.State = statestore.StatePending
			cur.RawBlobKey = ""
			cur.ParsedBlobKey = ""
		},
	)
	if err != nil {
		if statestore.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}
