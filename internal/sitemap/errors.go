package sitemap

import (
	"fmt"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

// ErrorCause enumerates why sitemap discovery could not complete for a
// domain. None of these are fatal to the overall discovery run: callers
// should log and continue with whatever candidates were already
// accumulated.
type ErrorCause string

const (
	ErrCauseFetch  ErrorCause = "fetch_failed"
	ErrCauseParse  ErrorCause = "parse_failed"
	ErrCauseDepth  ErrorCause = "max_depth_exceeded"
)

// DiscoverError reports a non-fatal problem encountered while walking one
// sitemap URL; it never aborts the overall Discover call.
type DiscoverError struct {
	SitemapURL string
	Cause      ErrorCause
	Err        error
}

func (e *DiscoverError) Error() string {
	return fmt.Sprintf("sitemap: %s: %s: %v", e.Cause, e.SitemapURL, e.Err)
}

func (e *DiscoverError) Unwrap() error { return e.Err }

func (e *DiscoverError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}
