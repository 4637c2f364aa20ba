package statestore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and the single-host
// "memory" backend; it is not durable and shares no state across processes.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]URLRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]URLRecord)}
}

func (s *MemoryStore) Get(_ context.Context, urlHash string) (URLRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[urlHash]
	if !ok {
		return URLRecord{}, false, nil
	}
	return r.Clone(), true, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, record URLRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.URLHash]; exists {
		return false, nil
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.records[record.URLHash] = record.Clone()
	return true, nil
}

func (s *MemoryStore) UpdateIf(_ context.Context, urlHash string, cond Condition, update Updates) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[urlHash]
	if !ok {
		return false, newNotFound("no record for " + urlHash)
	}
	if !cond(current.Clone()) {
		return false, nil
	}
	next := current.Clone()
	update(&next)
	next.UpdatedAt = time.Now()
	s.records[urlHash] = next
	return true, nil
}

func (s *MemoryStore) QueryByDomainState(_ context.Context, domain string, state State, limit int) ([]URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []URLRecord
	for _, r := range s.records {
		if r.Domain == domain && r.State == state {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) BatchGet(_ context.Context, urlHashes []string) (map[string]URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]URLRecord, len(urlHashes))
	for _, h := range urlHashes {
		if r, ok := s.records[h]; ok {
			out[h] = r.Clone()
		}
	}
	return out, nil
}

func (s *MemoryStore) BatchPut(_ context.Context, records []URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, r := range records {
		if _, exists := s.records[r.URLHash]; !exists {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		s.records[r.URLHash] = r.Clone()
	}
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, filter ScanFilter, limit int) ([]URLRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []URLRecord
	for _, r := range s.records {
		if filter == nil || filter(r.Clone()) {
			out = append(out, r.Clone())
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
