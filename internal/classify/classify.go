// Package classify maps an error (a transport failure
// from internal/fetch, an HTTP status classification, or a robots/content
// condition) into the error taxonomy and decides retry/backoff. This is
// the one place the worker loop consults to turn a failure into a
// state-machine decision; no other package re-derives these rules.
package classify

import (
	"math/rand"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/fetch"
	"github.com/crawlfabric/crawlfabric/pkg/timeutil"
)

// Kind is one of the taxonomy's named error kinds.
type Kind string

const (
	KindConnectionError  Kind = "ConnectionError"
	KindTimeout          Kind = "Timeout"
	KindHTTPClientError  Kind = "HttpClientError"
	KindHTTPServerError  Kind = "HttpServerError"
	KindRateLimited      Kind = "RateLimited"
	KindRobotsBlocked    Kind = "RobotsBlocked"
	KindContentTooLarge  Kind = "ContentTooLarge"
	KindParseError       Kind = "ParseError"
	KindUnknown          Kind = "Unknown"
)

// Classification is the {kind, retryable, permanent, suggested_delay}
// tuple every worker-loop failure path branches on.
type Classification struct {
	Kind           Kind
	Retryable      bool
	Permanent      bool
	SuggestedDelay time.Duration
}

// Policy bundles the configured knobs Classify/Backoff need: the base
// retry delay, its ceiling, the exponential
// multiplier, the jitter width, and a per-kind max-retries override.
type Policy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         time.Duration
	MaxRetries     int
	KindMaxRetries map[Kind]int
}

// DefaultPolicy returns the fabric's out-of-the-box backoff shape, tunable
// via config.Config's retry fields.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     500 * time.Millisecond,
		MaxRetries: 5,
	}
}

// ClassifyFetchError maps a *fetch.FetchError (a transport-level failure
// that never produced a classifiable status code) to a Classification.
func ClassifyFetchError(err *fetch.FetchError, basedelay time.Duration) Classification {
	switch err.Cause {
	case fetch.ErrCauseTimeout:
		return Classification{Kind: KindTimeout, Retryable: true, SuggestedDelay: scaleDelay(basedelay, 1.5)}
	case fetch.ErrCauseContentTooLarge:
		return Classification{Kind: KindContentTooLarge, Permanent: true}
	case fetch.ErrCauseConnection, fetch.ErrCauseTLS:
		return Classification{Kind: KindConnectionError, Retryable: true, SuggestedDelay: basedelay}
	case fetch.ErrCauseInvalidRequest:
		return Classification{Kind: KindParseError, Permanent: true}
	default:
		return Classification{Kind: KindUnknown, Retryable: true, SuggestedDelay: scaleDelay(basedelay, 2)}
	}
}

// ClassifyStatus maps a fetch.Classification (derived from an HTTP status
// code) plus any Retry-After hint into a Classification.
func ClassifyStatus(class fetch.Classification, retryAfter time.Duration, basedelay time.Duration) Classification {
	switch class {
	case fetch.ClassTerminalNotFound, fetch.ClassTerminalClient:
		return Classification{Kind: KindHTTPClientError, Permanent: true}
	case fetch.ClassRetryableRateLimited:
		delay := scaleDelay(basedelay, 3)
		if retryAfter > 0 {
			delay = retryAfter
		}
		return Classification{Kind: KindRateLimited, Retryable: true, SuggestedDelay: delay}
	case fetch.ClassRetryableServer:
		return Classification{Kind: KindHTTPServerError, Retryable: true, SuggestedDelay: basedelay}
	default:
		return Classification{Kind: KindUnknown}
	}
}

// RobotsBlocked is the fixed classification for a robots.txt disallow.
func RobotsBlocked() Classification {
	return Classification{Kind: KindRobotsBlocked, Permanent: true}
}

// ParseError is the fixed classification for a malformed payload.
func ParseError() Classification {
	return Classification{Kind: KindParseError, Permanent: true}
}

func scaleDelay(base time.Duration, factor float64) time.Duration {
	return time.Duration(float64(base) * factor)
}

// ShouldRetry reports whether retryCount has not yet exhausted the budget
// for c.Kind (p.KindMaxRetries overrides p.MaxRetries per kind).
func (p Policy) ShouldRetry(c Classification, retryCount int) bool {
	if c.Permanent || !c.Retryable {
		return false
	}
	max := p.MaxRetries
	if override, ok := p.KindMaxRetries[c.Kind]; ok {
		max = override
	}
	return retryCount < max
}

// Backoff computes the delay before the next retry attempt (1-indexed),
// exponential with p.Multiplier, capped at p.MaxDelay, widened by up to
// p.Jitter of symmetric random jitter, and never less than one second.
func (p Policy) Backoff(retryCount int, rng *rand.Rand) time.Duration {
	bp := timeutil.NewBackoffParam(p.BaseDelay, p.Multiplier, p.MaxDelay)
	attempt := retryCount + 1
	half := p.Jitter / 2
	delay := timeutil.ExponentialBackoffDelay(attempt, p.Jitter, *rng, bp) - half
	if delay < time.Second {
		delay = time.Second
	}
	return delay
}
