package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted wraps the last error once a policy gives up.
var ErrAttemptsExhausted = errors.New("all attempts failed")

// RetryPolicy bounds how a tier calls its backend.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// Single returns a one-attempt policy with the given timeout.
func Single(timeout time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Timeout: timeout}
}

// Clock abstracts time for the engine and retry loop.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits on a timer.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn under policy p. Each attempt gets its own timeout context;
// between failed attempts Do sleeps for p.Backoff. It returns the first
// success, or the last error wrapped in ErrAttemptsExhausted. Cancellation
// of ctx stops retrying immediately.
func Do[T any](ctx context.Context, p RetryPolicy, clock Clock, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := attempt(ctx, p.Timeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if i == attempts {
			break
		}
		if err := clock.Sleep(ctx, p.Backoff); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempt(s): %w", ErrAttemptsExhausted, attempts, lastErr)
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
