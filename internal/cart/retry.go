package cart

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"cartengine/internal/domain"
)

// withRetry runs fn, retrying only on optimistic write conflicts. Storage
// I/O failures propagate immediately. Backoff is exponential with jitter,
// capped at MaxDelay; a major conflict stops the loop early since retrying
// cannot reconcile a cart that diverged that far.
func withRetry(ctx context.Context, opts RetryOptions, fn func(ctx context.Context) error) error {
	attempts := 1
	if opts.Enabled && opts.MaxAttempts > 1 {
		attempts = opts.MaxAttempts
	}

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff(opts, i)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		last = err
		if conflict.Severity == domain.ConflictMajor {
			return last
		}
	}
	return last
}

func backoff(opts RetryOptions, attempt int) time.Duration {
	d := opts.BaseDelay
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if opts.MaxDelay > 0 && d >= opts.MaxDelay {
			d = opts.MaxDelay
			break
		}
	}
	// Up to 50% jitter keeps concurrent retriers from re-colliding.
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
