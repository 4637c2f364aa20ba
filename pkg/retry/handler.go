package retry

import (
	"fmt"
	"math/rand"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
	"github.com/crawlfabric/crawlfabric/pkg/timeutil"
)

// retryable lets an error opt out of retries. Errors that do not
// implement it are assumed transient.
type retryable interface {
	IsRetryable() bool
}

// Retry runs fn until it succeeds, returns a non-retryable error, or
// param.MaxAttempts is exhausted, sleeping an exponentially growing,
// jittered delay between attempts.
func Retry[T any](param RetryParam, fn func() (T, failure.ClassifiedError)) Result[T] {
	return retryWith(param, timeutil.NewRealSleeper(), fn)
}

// RetryWithSleeper is Retry with an injected sleeper, for tests that
// must not spend wall-clock time.
func RetryWithSleeper[T any](param RetryParam, sleeper timeutil.Sleeper, fn func() (T, failure.ClassifiedError)) Result[T] {
	return retryWith(param, sleeper, fn)
}

func retryWith[T any](param RetryParam, sleeper timeutil.Sleeper, fn func() (T, failure.ClassifiedError)) Result[T] {
	var zero T
	if param.MaxAttempts < 1 {
		return Result[T]{
			value: zero,
			err:   &RetryError{Message: "max attempts must be at least 1", Cause: ErrZeroAttempt, Retryable: false},
		}
	}

	rng := rand.New(rand.NewSource(param.RandomSeed))

	var lastErr failure.ClassifiedError
	for attempt := 1; attempt <= param.MaxAttempts; attempt++ {
		value, err := fn()
		if err == nil {
			return NewSuccessResult(value, attempt)
		}
		lastErr = err

		if r, ok := err.(retryable); ok && !r.IsRetryable() {
			return Result[T]{value: zero, err: err, attempts: attempt}
		}
		if attempt == param.MaxAttempts {
			break
		}

		sleeper.Sleep(timeutil.ExponentialBackoffDelay(attempt, param.Jitter, *rng, param.BackoffParam))
	}

	return Result[T]{
		value: zero,
		err: &RetryError{
			Message:   fmt.Sprintf("gave up after %d attempts: %v", param.MaxAttempts, lastErr),
			Cause:     ErrExhaustedAttempts,
			Retryable: true,
		},
		attempts: param.MaxAttempts,
	}
}
