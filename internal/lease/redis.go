package lease

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/urlstate"
)

// RedisManager is the Redis-backed lease variant: the
// exclusive claim is a `SET key value NX PX ttl` against Redis rather than
// a DynamoDB/Postgres ConditionExpression, while the authoritative
// URLRecord state transition is still issued through urlstate.Manager so
// both variants leave the same state machine in the same place.
// Redis's single-threaded command execution makes SET NX atomic, giving
// the same "exactly one winner" guarantee the store-backed Manager gets
// from its conditional update.
type RedisManager struct {
	client   *redis.Client
	states   *urlstate.Manager
	workerID string
	prefix   string
	log      *obslog.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

// NewRedisManager constructs a RedisManager. prefix namespaces the lock
// keys (e.g. "crawlfabric:lease:") so the lease keyspace cannot collide
// with other Redis users of the same instance.
func NewRedisManager(client *redis.Client, states *urlstate.Manager, workerID, prefix string, log *obslog.Logger) *RedisManager {
	return &RedisManager{
		client:   client,
		states:   states,
		workerID: workerID,
		prefix:   prefix,
		log:      log,
		held:     make(map[string]struct{}),
	}
}

func (m *RedisManager) lockKey(urlHash string) string {
	return m.prefix + urlHash
}

// WorkerID returns the identity this manager uses as lease_holder and
// DeadLetterMessage.CrawlerID.
func (m *RedisManager) WorkerID() string { return m.workerID }

// ReleaseToPending mirrors Manager.ReleaseToPending for the Redis variant:
// it drops the Redis lock without recording a failure, so the URLRecord
// goes back to PENDING for immediate redelivery.
func (m *RedisManager) ReleaseToPending(ctx context.Context, urlHash string) (bool, error) {
	applied, err := m.states.ReleaseToPending(ctx, urlHash, m.workerID)
	m.client.Del(ctx, m.lockKey(urlHash))
	m.forget(urlHash)
	return applied, err
}

// TryAcquire takes the Redis lock for urlHash, then drives the same
// PENDING->IN_PROGRESS transition as the store-backed Manager. If the
// store-side transition fails after the lock was won, the lock is
// released immediately so it does not outlive the state it was meant to
// protect.
func (m *RedisManager) TryAcquire(ctx context.Context, urlHash, rawURL, domain string, ttl time.Duration) (bool, error) {
	won, err := m.client.SetNX(ctx, m.lockKey(urlHash), m.workerID, ttl).Result()
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	ok, err := m.states.Acquire(ctx, urlHash, rawURL, domain, m.workerID, ttl, time.Now())
	if err != nil || !ok {
		m.client.Del(ctx, m.lockKey(urlHash))
		return false, err
	}

	m.mu.Lock()
	m.held[urlHash] = struct{}{}
	m.mu.Unlock()
	return true, nil
}

// Extend pushes out the Redis lock's TTL and the backing URLRecord's lease
// together; either failing means the lease is considered lost.
func (m *RedisManager) Extend(ctx context.Context, urlHash string, additionalTTL time.Duration) (bool, error) {
	extended, err := m.client.Expire(ctx, m.lockKey(urlHash), additionalTTL).Result()
	if err != nil {
		return false, err
	}
	if !extended {
		m.forget(urlHash)
		return false, nil
	}
	ok, err := m.states.Extend(ctx, urlHash, m.workerID, additionalTTL, time.Now())
	if err != nil {
		return false, err
	}
	if !ok {
		m.forget(urlHash)
	}
	return ok, nil
}

// ExtendAllHeld mirrors Manager.ExtendAllHeld for the Redis variant.
func (m *RedisManager) ExtendAllHeld(ctx context.Context, additionalTTL time.Duration) {
	m.mu.Lock()
	hashes := make([]string, 0, len(m.held))
	for h := range m.held {
		hashes = append(hashes, h)
	}
	m.mu.Unlock()

	for _, h := range hashes {
		if _, err := m.Extend(ctx, h, additionalTTL); err != nil {
			m.log.Error(obslog.CauseStorageFailure, "lease", "heartbeat_extend", err, obslog.Fields{"url_hash": h})
		}
	}
}

// Release performs the terminal transition and drops both the Redis lock
// and the worker-local held-set entry.
func (m *RedisManager) Release(ctx context.Context, urlHash string, outcome Outcome) (bool, error) {
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
	m.client.Del(ctx, m.lockKey(urlHash))
	m.forget(urlHash)
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ReleaseAllHeld mirrors Manager.ReleaseAllHeld for the Redis variant.
func (m *RedisManager) ReleaseAllHeld(ctx context.Context, reason string) {
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

func (m *RedisManager) forget(urlHash string) {
	m.mu.Lock()
	delete(m.held, urlHash)
	m.mu.Unlock()
}
