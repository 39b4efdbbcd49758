package retry

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// AlwaysError retries every error.
func AlwaysError(err error) bool { return true }

// Exponential returns a backoff doubling from base up to limit, giving at
// most attempts calls.
func Exponential(attempts int, base, limit time.Duration) wait.Backoff {
	if attempts < 1 {
		attempts = 1
	}
	return wait.Backoff{
		Steps:    attempts,
		Duration: base,
		Factor:   2,
		Jitter:   0.1,
		Cap:      limit,
	}
}

// Do calls fn until it succeeds, returns an error isRetry rejects, the
// backoff runs out of steps or ctx is done. It returns the last error of fn
// and the number of calls made.
func Do(ctx context.Context, backoff wait.Backoff, isRetry func(error) bool, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	calls := 0
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		calls++
		lastErr = fn(ctx)
		switch {
		case lastErr == nil:
			return true, nil
		case !isRetry(lastErr):
			return false, lastErr
		default:
			return false, nil
		}
	})
	if err == nil {
		return calls, nil
	}
	if ctx.Err() != nil {
		return calls, ctx.Err()
	}
	if lastErr != nil {
		return calls, lastErr
	}
	return calls, err
}

// Jitter returns d stretched by a random fraction of up to maxFactor.
func Jitter(d time.Duration, maxFactor float64) time.Duration {
	if maxFactor <= 0 {
		return d
	}
	return wait.Jitter(d, maxFactor)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
