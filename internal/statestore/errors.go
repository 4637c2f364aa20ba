package statestore

import (
	"fmt"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

// ErrorCause distinguishes the store-level failure classes:
// Conflict, NotFound, Throttled, Unavailable.
type ErrorCause string

const (
	ErrCauseConflict    ErrorCause = "conflict"
	ErrCauseNotFound    ErrorCause = "not_found"
	ErrCauseThrottled   ErrorCause = "throttled"
	ErrCauseUnavailable ErrorCause = "unavailable"
)

// StoreError is the ClassifiedError returned by every Store operation that
// cannot complete as requested.
type StoreError struct {
	Message   string
	Cause     ErrorCause
	Retryable bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("statestore: %s (%s)", e.Message, e.Cause)
}

func (e *StoreError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StoreError) IsRetryable() bool { return e.Retryable }

func newConflict(message string) *StoreError {
	return &StoreError{Message: message, Cause: ErrCauseConflict, Retryable: false}
}

func newNotFound(message string) *StoreError {
	return &StoreError{Message: message, Cause: ErrCauseNotFound, Retryable: false}
}

func newThrottled(message string) *StoreError {
	return &StoreError{Message: message, Cause: ErrCauseThrottled, Retryable: true}
}

func newUnavailable(message string) *StoreError {
	return &StoreError{Message: message, Cause: ErrCauseUnavailable, Retryable: true}
}

// IsConflict reports whether err represents a failed conditional update.
func IsConflict(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Cause == ErrCauseConflict
}

// IsNotFound reports whether err represents a missing key.
func IsNotFound(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Cause == ErrCauseNotFound
}
