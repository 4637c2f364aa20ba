package fetch

import (
	"fmt"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

// ErrorCause distinguishes why Fetch could not produce a usable response.
type ErrorCause string

const (
	ErrCauseConnection     ErrorCause = "connection"
	ErrCauseTimeout        ErrorCause = "timeout"
	ErrCauseContentTooLarge ErrorCause = "content_too_large"
	ErrCauseTLS            ErrorCause = "tls"
	ErrCauseInvalidRequest ErrorCause = "invalid_request"
)

// FetchError is returned for failures that never produced a classifiable
// HTTP response (network/TLS/timeout/size-cap). A successful round trip,
// even a 4xx/5xx one, is returned as a *Result, not an error; classify decides
// the status code from the Result.
type FetchError struct {
	Message   string
	Cause     ErrorCause
	Retryable bool
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *FetchError) IsRetryable() bool { return e.Retryable }
