package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"cartengine/internal/domain"
)

func fastRetry(attempts int) RetryOptions {
	return RetryOptions{Enabled: true, MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestWithRetrySucceedsAfterMinorConflicts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return (&domain.ConflictError{AttemptedVersion: 1, CurrentVersion: 2}).Classify(3)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	conflict := func(context.Context) error {
		calls++
		return (&domain.ConflictError{AttemptedVersion: 1, CurrentVersion: 2}).Classify(3)
	}
	err := withRetry(context.Background(), fastRetry(3), conflict)
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict after exhaustion, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryStopsOnMajorConflict(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return (&domain.ConflictError{AttemptedVersion: 1, CurrentVersion: 99}).Classify(3)
	})
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.Severity != domain.ConflictMajor {
		t.Fatalf("expected major conflict, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("major conflict must not retry, got %d attempts", calls)
	}
}

func TestWithRetryPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("io failure")
	calls := 0
	err := withRetry(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected io failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-conflict errors must not retry, got %d attempts", calls)
	}
}

func TestWithRetryDisabled(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryOptions{}, func(context.Context) error {
		calls++
		return (&domain.ConflictError{AttemptedVersion: 1, CurrentVersion: 2}).Classify(3)
	})
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("disabled retry must run once, got %d", calls)
	}
}

func TestWithRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, RetryOptions{Enabled: true, MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context) error {
		return (&domain.ConflictError{AttemptedVersion: 1, CurrentVersion: 2}).Classify(3)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
