package blobstore

import (
	"fmt"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

// ErrorCause enumerates why a blob operation failed.
type ErrorCause string

const (
	ErrCauseNotFound    ErrorCause = "not_found"
	ErrCauseWriteFailed ErrorCause = "write_failed"
	ErrCauseReadFailed  ErrorCause = "read_failed"
	ErrCauseUnavailable ErrorCause = "unavailable"
)

// BlobError is returned for any blobstore failure; Retryable distinguishes
// a transient backend hiccup from a permanent condition like a missing key.
type BlobError struct {
	Key       string
	Message   string
	Cause     ErrorCause
	Retryable bool
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blobstore: %s: %s: %s", e.Cause, e.Key, e.Message)
}

func (e *BlobError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsNotFound reports whether err is a BlobError for a missing key.
func IsNotFound(err error) bool {
	be, ok := err.(*BlobError)
	return ok && be.Cause == ErrCauseNotFound
}
