// Package concurrency implements the two-level semaphore gating
// global and per-domain task parallelism: a global golang.org/x/sync/
// semaphore.Weighted with capacity max_concurrent, and a per-domain
// semaphore.Weighted created lazily (capacity max_concurrent_per_domain,
// or a per-domain override) the first time that domain is seen. A task
// acquires global then domain, and releases in reverse order.
package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Manager is the two-level semaphore. Construct one per worker
// process and share it across every crawl task.
type Manager struct {
	global *semaphore.Weighted

	defaultPerDomain int64
	overrides        map[string]int64

	mu      sync.Mutex
	domains map[string]*domainSem

	active       int64
	waitNanos    int64
}

type domainSem struct {
	sem     *semaphore.Weighted
	holders int64
}

// NewManager constructs a Manager with global capacity maxConcurrent and a
// default per-domain capacity of maxConcurrentPerDomain. overrides may set
// a different per-domain capacity for specific domains.
func NewManager(maxConcurrent, maxConcurrentPerDomain int, overrides map[string]int) *Manager {
	ov := make(map[string]int64, len(overrides))
	for k, v := range overrides {
		ov[k] = int64(v)
	}
	return &Manager{
		global:           semaphore.NewWeighted(int64(maxConcurrent)),
		defaultPerDomain: int64(maxConcurrentPerDomain),
		overrides:        ov,
		domains:          make(map[string]*domainSem),
	}
}

func (m *Manager) domainSemaphore(domain string) *domainSem {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.domains[domain]
	if !ok {
		capacity := m.defaultPerDomain
		if v, ok := m.overrides[domain]; ok {
			capacity = v
		}
		ds = &domainSem{sem: semaphore.NewWeighted(capacity)}
		m.domains[domain] = ds
	}
	return ds
}

// Token represents one acquired slot; callers must call Release exactly
// once when the task completes, whether it succeeded, failed, or timed
// out.
type Token struct {
	m      *Manager
	domain string
	ds     *domainSem
}

// Acquire blocks (respecting ctx) until both the global and domain-level
// semaphores admit the task, in that order. If the domain acquire fails
// (e.g. ctx cancellation), the already-acquired global slot is released
// before returning, so a failed Acquire never leaks a held slot.
func (m *Manager) Acquire(ctx context.Context, domain string) (*Token, error) {
	start := time.Now()
	if err := m.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	ds := m.domainSemaphore(domain)
	if err := ds.sem.Acquire(ctx, 1); err != nil {
		m.global.Release(1)
		return nil, err
	}
	atomic.AddInt64(&ds.holders, 1)
	atomic.AddInt64(&m.active, 1)
	atomic.AddInt64(&m.waitNanos, int64(time.Since(start)))
	return &Token{m: m, domain: domain, ds: ds}, nil
}

// Release returns the token's slots in reverse acquisition order: domain
// first, then global.
func (t *Token) Release() {
	atomic.AddInt64(&t.ds.holders, -1)
	t.ds.sem.Release(1)
	t.m.global.Release(1)
	atomic.AddInt64(&t.m.active, -1)
}

// RunWithTimeout acquires a token for domain, runs fn bounded by timeout,
// and releases the token before returning. A task exceeding timeout is
// cancelled via ctx and counted as a failure (the caller's fn must observe
// ctx.Done() at its I/O boundaries).
func (m *Manager) RunWithTimeout(ctx context.Context, domain string, timeout time.Duration, fn func(context.Context) error) error {
	token, err := m.Acquire(ctx, domain)
	if err != nil {
		return err
	}
	defer token.Release()

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(taskCtx)
}

// Stats is a snapshot of the manager's counters, exposed on the worker's
// metrics. Wait times are not tracked: Snapshot leaves AverageWaitTime
// at zero.
type Stats struct {
	ActiveTasks     int64
	DomainDepth     map[string]int64
	AverageWaitTime time.Duration
}

// Snapshot returns the manager's current counters.
func (m *Manager) Snapshot() Stats {
	m.mu.Lock()
	depth := make(map[string]int64, len(m.domains))
	for domain, ds := range m.domains {
		depth[domain] = atomic.LoadInt64(&ds.holders)
	}
	m.mu.Unlock()
	return Stats{
		ActiveTasks: atomic.LoadInt64(&m.active),
		DomainDepth: depth,
	}
}

// SweepIdleDomains removes per-domain semaphores with no current holders.
// Call this on a schedule (e.g. every
// few minutes) from the worker process's background tasks.
func (m *Manager) SweepIdleDomains() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for domain, ds := range m.domains {
		if atomic.LoadInt64(&ds.holders) == 0 {
			delete(m.domains, domain)
			removed++
		}
	}
	return removed
}
