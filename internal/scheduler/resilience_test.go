package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0,
	}
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	var attempts int32
	flaky := func(ctx context.Context, tc *TaskContext) (any, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}

	wrapped := WithRetry(flaky, NewBreakerRegistry().Get("test"), fastRetryConfig())
	result, err := wrapped(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if result != "recovered" {
		t.Errorf("unexpected result: %v", result)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestWithRetryDoesNotRetrySuspension(t *testing.T) {
	var attempts int32
	suspending := func(ctx context.Context, tc *TaskContext) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, &Suspend{TaskID: "a", DependencyID: "b"}
	}

	wrapped := WithRetry(suspending, NewBreakerRegistry().Get("test"), fastRetryConfig())
	_, err := wrapped(context.Background(), nil)

	// The suspension must reach the worker wrapper intact and untried.
	susp, ok := AsSuspend(err)
	if !ok {
		t.Fatalf("expected a suspension to pass through, got: %v", err)
	}
	if susp.DependencyID != "b" {
		t.Errorf("suspension corrupted: %+v", susp)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("suspension must not be retried, got %d attempts", got)
	}
}

func TestWithRetryDoesNotRetryStructuralErrors(t *testing.T) {
	var attempts int32
	structural := func(ctx context.Context, tc *TaskContext) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, ErrMissingDependency
	}

	wrapped := WithRetry(structural, NewBreakerRegistry().Get("test"), fastRetryConfig())
	_, err := wrapped(context.Background(), nil)
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("structural errors must not be retried, got %d attempts", got)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var attempts int32
	body := func(ctx context.Context, tc *TaskContext) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("transient")
	}

	wrapped := WithRetry(body, NewBreakerRegistry().Get("test"), fastRetryConfig())
	_, err := wrapped(ctx, nil)
	if err == nil {
		t.Fatal("expected an error from a canceled context")
	}
	if got := atomic.LoadInt32(&attempts); got > 1 {
		t.Errorf("canceled context must stop retrying, got %d attempts", got)
	}
}

func TestBreakerRegistrySharesPerKind(t *testing.T) {
	reg := NewBreakerRegistry()
	if reg.Get("db") != reg.Get("db") {
		t.Error("same kind must share one breaker")
	}
	if reg.Get("db") == reg.Get("http") {
		t.Error("different kinds must get distinct breakers")
	}
}
