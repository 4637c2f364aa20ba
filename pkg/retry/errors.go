package retry

import (
	"fmt"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

type RetryErrorCause string

const (
	ErrZeroAttempt       RetryErrorCause = "zero attempt budget"
	ErrExhaustedAttempts RetryErrorCause = "attempts exhausted"
)

// RetryError is returned when Retry itself fails: the attempt budget was
// invalid or every attempt failed with a transient error. The last
// underlying error is folded into Message.
type RetryError struct {
	Message   string
	Retryable bool
	Cause     RetryErrorCause
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry: %s: %s", e.Cause, e.Message)
}

func (e *RetryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RetryError) IsRetryable() bool { return e.Retryable }

func (e *RetryError) Is(target error) bool {
	_, ok := target.(*RetryError)
	return ok
}
