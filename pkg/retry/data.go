package retry

import (
	"time"

	"github.com/crawlfabric/crawlfabric/pkg/timeutil"
)

// RetryParam bounds one Retry call: how many attempts, how the delay
// between them grows, and how much random jitter widens each delay.
// The seed makes the jitter sequence reproducible in tests.
type RetryParam struct {
	MaxAttempts  int
	Jitter       time.Duration
	RandomSeed   int64
	BackoffParam timeutil.BackoffParam
}

// NewRetryParam builds a RetryParam.
func NewRetryParam(maxAttempts int, jitter time.Duration, seed int64, bp timeutil.BackoffParam) RetryParam {
	return RetryParam{
		MaxAttempts:  maxAttempts,
		Jitter:       jitter,
		RandomSeed:   seed,
		BackoffParam: bp,
	}
}
