package balancer

import (
	"context"
	"time"
)

const (
	// DefaultMaxAttempts bounds how many times one operation's transaction
	// is attempted when the store reports contention.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is the fixed pause between attempts.
	DefaultRetryBackoff = 100 * time.Millisecond
)

// RetryPolicy bounds the retry loop around one balancer transaction.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns 3 attempts with a 100ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultRetryBackoff}
}

// retry calls fn until it succeeds, returns an error retryable rejects, or
// MaxAttempts is reached. onRetry, if non-nil, is called before each pause.
// Returns the number of attempts made and the last error.
func retry(
	ctx context.Context,
	policy RetryPolicy,
	retryable func(error) bool,
	onRetry func(attempt int, err error),
	fn func(attempt int) error,
) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) || attempt == maxAttempts {
			return attempt, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if policy.Backoff > 0 {
			timer := time.NewTimer(policy.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, err
			case <-timer.C:
			}
		}
	}
	return maxAttempts, err
}
