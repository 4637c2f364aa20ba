package statestore

import "context"

// Condition is a predicate evaluated against the currently stored record
// before Store.UpdateIf applies Updates. It must be side-effect free.
type Condition func(current URLRecord) bool

// Updates mutates a copy of the current record in place; the store applies
// the resulting value if Condition returned true.
type Updates func(current *URLRecord)

// ScanFilter narrows Store.Scan to records of interest, e.g. expired leases.
type ScanFilter func(r URLRecord) bool

// Store is the state-store port: CRUD plus a single atomic,
// linearizable-per-key conditional update primitive the state machine
// builds on.
// All operations other than UpdateIf may be eventually consistent across
// keys; implementations must never rely on cross-key transactions.
type Store interface {
	Get(ctx context.Context, urlHash string) (URLRecord, bool, error)
	PutIfAbsent(ctx context.Context, record URLRecord) (created bool, err error)
	UpdateIf(ctx context.Context, urlHash string, cond Condition, update Updates) (applied bool, err error)
	QueryByDomainState(ctx context.Context, domain string, state State, limit int) ([]URLRecord, error)
	BatchGet(ctx context.Context, urlHashes []string) (map[string]URLRecord, error)
	BatchPut(ctx context.Context, records []URLRecord) error
	Scan(ctx context.Context, filter ScanFilter, limit int) ([]URLRecord, error)
}
