// Package dedup implements the two-stage URL novelty check that runs
// ahead of record creation: an approximate Bloom filter stage narrows
// the set of candidates that need an authoritative state-store lookup.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
	"github.com/crawlfabric/crawlfabric/pkg/bloom"
	"github.com/crawlfabric/crawlfabric/pkg/urlnorm"
)

// Stats reports what Deduplicate did with one batch.
type Stats struct {
	Input      int
	Duplicates int
	New        int
}

// AuthoritativeStore is the subset of statestore.Store the stage-2 lookup
// needs; narrowed so Deduplicator doesn't depend on the full port.
type AuthoritativeStore interface {
	BatchGet(ctx context.Context, urlHashes []string) (map[string]statestore.URLRecord, error)
}

// ApproxFilter is the stage-1 membership test. bloom.Filter satisfies it
// directly; GenerationRotator also satisfies it so a rotating multi-
// generation filter can stand in transparently.
type ApproxFilter interface {
	Contains(hash string) bool
	Add(hash string) bool
}

// Deduplicator runs the two-stage novelty check. Stage 1 is optional: a
// nil filter skips straight to stage 2, which is authoritative on its own.
type Deduplicator struct {
	store  AuthoritativeStore
	filter ApproxFilter
	log    *obslog.Logger

	batchSize int
}

// New constructs a Deduplicator over store, optionally backed by filter
// (pass nil to skip stage 1). batchSize bounds each BatchGet call to the
// backend's batch limit (e.g. DynamoDB BatchGetItem's 100-item cap).
func New(store AuthoritativeStore, filter ApproxFilter, batchSize int, log *obslog.Logger) *Deduplicator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Deduplicator{store: store, filter: filter, batchSize: batchSize, log: log}
}

// NewURL is one normalized, previously-unseen URL surfaced by Deduplicate.
type NewURL struct {
	Raw       string
	Canonical string
	Hash      string
}

type candidate struct {
	raw       string
	canonical string
	hash      string
}

// Deduplicate normalizes rawURLs, drops in-batch duplicates, and returns
// the subset that are genuinely new. Malformed
// URLs are silently dropped; callers that need visibility into rejects
// should normalize upstream and report there.
func (d *Deduplicator) Deduplicate(ctx context.Context, rawURLs []string) ([]NewURL, Stats, error) {
	stats := Stats{Input: len(rawURLs)}

	seen := make(map[string]struct{}, len(rawURLs))
	candidates := make([]candidate, 0, len(rawURLs))
	for _, raw := range rawURLs {
		canonical, hash, err := urlnorm.NormalizeAndHash(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[hash]; dup {
			stats.Duplicates++
			continue
		}
		seen[hash] = struct{}{}
		candidates = append(candidates, candidate{raw: raw, canonical: canonical.String(), hash: hash})
	}

	var definitelyNew []candidate
	var needsStage2 []candidate
	if d.filter == nil {
		needsStage2 = candidates
	} else {
		for _, c := range candidates {
			if d.filter.Contains(c.hash) {
				needsStage2 = append(needsStage2, c)
			} else {
				definitelyNew = append(definitelyNew, c)
			}
		}
	}

	known, err := d.stage2Known(ctx, needsStage2)
	if err != nil {
		return nil, stats, err
	}

	result := make([]NewURL, 0, len(candidates))
	for _, c := range definitelyNew {
		result = append(result, NewURL{Raw: c.raw, Canonical: c.canonical, Hash: c.hash})
	}
	for _, c := range needsStage2 {
		if _, present := known[c.hash]; present {
			stats.Duplicates++
			continue
		}
		result = append(result, NewURL{Raw: c.raw, Canonical: c.canonical, Hash: c.hash})
	}
	stats.New = len(result)

	if d.filter != nil {
		for _, u := range result {
			d.filter.Add(u.Hash)
		}
	}

	return result, stats, nil
}

func (d *Deduplicator) stage2Known(ctx context.Context, candidates []candidate) (map[string]statestore.URLRecord, error) {
	known := make(map[string]statestore.URLRecord)
	for start := 0; start < len(candidates); start += d.batchSize {
		end := start + d.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		hashes := make([]string, end-start)
		for i, c := range candidates[start:end] {
			hashes[i] = c.hash
		}
		records, err := d.store.BatchGet(ctx, hashes)
		if err != nil {
			return nil, err
		}
		for h, r := range records {
			known[h] = r
		}
	}
	return known, nil
}

// GenerationRotator periodically swaps in a fresh Bloom filter so stale
// "seen" entries age out. A hash is a stage-1 hit if any live generation
// contains it;
// writes always land in the newest generation.
type GenerationRotator struct {
	mu          sync.Mutex
	newFilter   func() (*bloom.Filter, error)
	generations []*bloom.Filter
	maxGen      int
	log         *obslog.Logger
}

// NewGenerationRotator constructs a rotator that keeps at most maxGen Bloom
// filter generations, each produced by newFilter.
func NewGenerationRotator(maxGen int, newFilter func() (*bloom.Filter, error), log *obslog.Logger) (*GenerationRotator, error) {
	if maxGen < 1 {
		maxGen = 1
	}
	first, err := newFilter()
	if err != nil {
		return nil, err
	}
	return &GenerationRotator{
		newFilter:   newFilter,
		generations: []*bloom.Filter{first},
		maxGen:      maxGen,
		log:         log,
	}, nil
}

// Contains reports whether hash appears in any live generation.
func (r *GenerationRotator) Contains(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gen := range r.generations {
		if gen.Contains(hash) {
			return true
		}
	}
	return false
}

// Add inserts hash into the newest (current) generation.
func (r *GenerationRotator) Add(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.generations[len(r.generations)-1]
	return current.Add(hash)
}

// Rotate starts a new generation, retiring the oldest once the cap is
// exceeded. Call on a schedule (e.g. daily).
func (r *GenerationRotator) Rotate(context.Context) error {
	next, err := r.newFilter()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations = append(r.generations, next)
	if len(r.generations) > r.maxGen {
		r.generations = r.generations[len(r.generations)-r.maxGen:]
	}
	count := len(r.generations)
	if r.log != nil {
		r.log.Info("bloom_rotate", obslog.Fields{"generations": itoa(count)})
	}
	return nil
}

// RunPeriodic rotates every interval until ctx is cancelled. Intended to
// run as a background goroutine started alongside the discovery worker.
func (r *GenerationRotator) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Rotate(ctx); err != nil && r.log != nil {
				r.log.Error(obslog.CauseStorageFailure, "dedup", "rotate_failed", err, nil)
			}
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
