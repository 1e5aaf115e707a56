package inference

import (
	"context"
	"errors"
	"time"
)

// transientError marks connection-class failures that are worth retrying.
// HTTP error responses are never wrapped in it.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err was a connection-class failure rather than
// an explicit rejection by the inference service.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// RetryPolicy retries an operation on transient failures with a
// per-attempt backoff. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy retries up to 5 attempts with linearly increasing
// delays: base, 2*base, 3*base, 4*base.
func DefaultRetryPolicy() RetryPolicy {
	return LinearBackoff(5, 2*time.Second)
}

func LinearBackoff(maxAttempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * base
		},
	}
}

// Do runs op, retrying while it returns transient errors. The final error is
// returned unchanged once attempts are exhausted or the error is permanent.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}

		delay := time.Duration(0)
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
