// Package lease implements the per-URL exclusive lease on top of the
// URL state machine (internal/urlstate). A Manager is constructed once
// per worker process and is identified by a stable worker id; it tracks
// every lease it currently holds so a heartbeat goroutine can extend them
// all and a drain path can force-release them.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
	"github.com/crawlfabric/crawlfabric/internal/urlstate"
)

// Leaser is the port internal/worker depends on: acquire, extend,
// release, and release-to-pending, satisfied by both lease backend
// variants, the statestore-backed Manager and the Redis-backed
// RedisManager. Accepting this interface instead of a
// concrete type is what lets cmd/crawlworker pick either backend behind
// config.Config.LeaseBackend without internal/worker knowing which one it
// got.
type Leaser interface {
	WorkerID() string
	TryAcquire(ctx context.Context, urlHash, rawURL, domain string, ttl time.Duration) (bool, error)
	ExtendAllHeld(ctx context.Context, additionalTTL time.Duration)
	ReleaseToPending(ctx context.Context, urlHash string) (bool, error)
	Release(ctx context.Context, urlHash string, outcome Outcome) (bool, error)
	ReleaseAllHeld(ctx context.Context, reason string)
}

var (
	_ Leaser = (*Manager)(nil)
	_ Leaser = (*RedisManager)(nil)
)

// Manager issues time-bounded exclusive URL claims (acquire, extend,
// release, reclaim-expired) backed by whichever statestore.Store the
// caller wired urlstate.Manager against (DynamoDB, Postgres, or the
// in-memory backend; all satisfy the same conditional-update contract).
type Manager struct {
	states   *urlstate.Manager
	workerID string
	log      *obslog.Logger

	mu   sync.Mutex
	held map[string]heldLease
}

type heldLease struct {
	domain string
}

// New constructs a Manager identified by workerID, issuing transitions
// through states.
func New(states *urlstate.Manager, workerID string, log *obslog.Logger) *Manager {
	return &Manager{
		states:   states,
		workerID: workerID,
		log:      log,
		held:     make(map[string]heldLease),
	}
}

// WorkerID returns the identity this manager uses as lease_holder.
func (m *Manager) WorkerID() string { return m.workerID }

// TryAcquire attempts PENDING -> IN_PROGRESS for urlHash, creating the
// record if absent. On success the lease is recorded in the worker-local
// held set so the heartbeat and drain paths can find it.
func (m *Manager) TryAcquire(ctx context.Context, urlHash, rawURL, domain string, ttl time.Duration) (bool, error) {
	now := time.Now()
	ok, err := m.states.Acquire(ctx, urlHash, rawURL, domain, m.workerID, ttl, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	m.mu.Lock()
	m.held[urlHash] = heldLease{domain: domain}
	m.mu.Unlock()
	return true, nil
}

// Extend renews urlHash's lease by additionalTTL, predicated on this
// manager still being the holder. A false return means the lease has
// already been lost (e.g. to a reclaim sweep); the caller must abandon
// whatever work it was doing on the URL.
func (m *Manager) Extend(ctx context.Context, urlHash string, additionalTTL time.Duration) (bool, error) {
	ok, err := m.states.Extend(ctx, urlHash, m.workerID, additionalTTL, time.Now())
	if err != nil {
		return false, err
	}
	if !ok {
		m.forget(urlHash)
	}
	return ok, nil
}

// ExtendAllHeld extends every lease currently recorded as held by
// additionalTTL, logging (but not failing on) any lease that has been
// lost. Intended to be called once per heartbeat tick.
func (m *Manager) ExtendAllHeld(ctx context.Context, additionalTTL time.Duration) {
	m.mu.Lock()
	hashes := make([]string, 0, len(m.held))
	for h := range m.held {
		hashes = append(hashes, h)
	}
	m.mu.Unlock()

	for _, h := range hashes {
		ok, err := m.Extend(ctx, h, additionalTTL)
		if err != nil {
			m.log.Error(obslog.CauseStorageFailure, "lease", "heartbeat_extend", err, obslog.Fields{"url_hash": h})
			continue
		}
		if !ok {
			m.log.Info("heartbeat_lease_lost", obslog.Fields{"url_hash": h})
		}
	}
}

// ReleaseToPending gives up a held lease without recording a failure,
// returning the record to PENDING for immediate redelivery. Used when
// admission (not the URL itself) is the reason the worker can't proceed,
// e.g. the rate limiter denying a domain.
func (m *Manager) ReleaseToPending(ctx context.Context, urlHash string) (bool, error) {
	applied, err := m.states.ReleaseToPending(ctx, urlHash, m.workerID)
	m.forget(urlHash)
	return applied, err
}

// Release performs the terminal IN_PROGRESS transition (DONE on success,
// FAILED otherwise) and drops urlHash from the held set. It is idempotent:
// if a reclaim already made the predicate false, the underlying update is
// a harmless no-op and the held-set entry is still removed.
func (m *Manager) Release(ctx context.Context, urlHash string, outcome Outcome) (bool, error) {
	var (
		applied bool
		err     error
	)
	switch outcome.Terminal {
	case TerminalDone:
		applied, err = m.states.Complete(ctx, urlHash, m.workerID, outcome.RawBlobKey, outcome.ParsedBlobKey, time.Now())
	case TerminalFailed:
		applied, err = m.states.Fail(ctx, urlHash, m.workerID, outcome.LastError, outcome.NextEligibleAt)
	}
	m.forget(urlHash)
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ReleaseAllHeld force-transitions every currently held lease to FAILED,
// used during graceful shutdown so no reclaim sweep is needed to recover
// abandoned work.
func (m *Manager) ReleaseAllHeld(ctx context.Context, reason string) {
	m.mu.Lock()
	hashes := make([]string, 0, len(m.held))
	for h := range m.held {
		hashes = append(hashes, h)
	}
	m.mu.Unlock()

	for _, h := range hashes {
		if _, err := m.Release(ctx, h, Outcome{Terminal: TerminalFailed, LastError: reason}); err != nil {
			m.log.Error(obslog.CauseStorageFailure, "lease", "drain_release", err, obslog.Fields{"url_hash": h})
		}
	}
}

func (m *Manager) forget(urlHash string) {
	m.mu.Lock()
	delete(m.held, urlHash)
	m.mu.Unlock()
}

// ReclaimExpired runs the recovery sweep: IN_PROGRESS records whose lease has
// expired are returned to PENDING so they may be retried. It is decoupled
// from any one worker's lifecycle and safe to run from a standalone
// scheduled job (cmd/crawlreclaim).
func (m *Manager) ReclaimExpired(ctx context.Context, lister ExpiredLister, limit int) (int, error) {
	now := time.Now()
	expired, err := lister.ListExpiredLeases(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, urlHash := range expired {
		ok, err := m.states.Reclaim(ctx, urlHash, now)
		if err != nil {
			m.log.Error(obslog.CauseStorageFailure, "lease", "reclaim", err, obslog.Fields{"url_hash": urlHash})
			continue
		}
		if ok {
			reclaimed++
		}
	}
	return reclaimed, nil
}

// ExpiredLister is the narrow read-side port ReclaimExpired needs: a way
// to list IN_PROGRESS records whose lease_expires_at has passed. This is
// satisfied by internal/statestore.Store.Scan with a lease-expiry filter.
type ExpiredLister interface {
	ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// RescheduleFailed runs the retry sweep: FAILED records with retries
// remaining whose backoff has elapsed are moved back to PENDING. It
// returns the records it moved so the caller can re-publish a crawl
// message for each; records another sweeper moved first are skipped.
func (m *Manager) RescheduleFailed(ctx context.Context, lister FailedLister, maxRetries, limit int) ([]statestore.URLRecord, error) {
	now := time.Now()
	due, err := lister.ListRetryableFailures(ctx, now, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	moved := make([]statestore.URLRecord, 0, len(due))
	for _, rec := range due {
		ok, err := m.states.Retry(ctx, rec.URLHash, maxRetries)
		if err != nil {
			m.log.Error(obslog.CauseStorageFailure, "lease", "retry", err, obslog.Fields{"url_hash": rec.URLHash})
			continue
		}
		if ok {
			moved = append(moved, rec)
		}
	}
	return moved, nil
}

// FailedLister is the read-side port RescheduleFailed needs: FAILED
// records below the retry budget whose next_eligible_at has passed.
type FailedLister interface {
	ListRetryableFailures(ctx context.Context, now time.Time, maxRetries, limit int) ([]statestore.URLRecord, error)
}

// TerminalState is the outcome a Release call records.
type TerminalState int

const (
	TerminalDone TerminalState = iota
	TerminalFailed
)

// Outcome carries the terminal-transition payload for Release.
type Outcome struct {
	Terminal       TerminalState
	RawBlobKey     string
	ParsedBlobKey  string
	LastError      string
	NextEligibleAt *time.Time
}
