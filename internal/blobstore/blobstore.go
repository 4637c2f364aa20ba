// Package blobstore is the adapter over durable payload
// storage for raw and parsed fetch bodies. Keys are opaque strings chosen
// by the caller (deterministic, derived from the URL hash plus a date
// partition); writes are
// at-least-once and callers rely on deterministic keys for idempotency.
package blobstore

import "context"

// PutResult reports the content version blobstore computed for a write,
// letting callers detect whether a re-crawl actually changed the payload.
type PutResult struct {
	Version string
}

// Store is the blob storage port.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (PutResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (bool, error)
}
