package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// The scheduler core never retries: a failed task stays failed and re-adding
// it is the caller's responsibility. Callers whose executors hit flaky
// external services can opt in by wrapping them with WithRetry before
// registration.

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages circuit breakers keyed by executor kind, so that
// many tasks calling the same external service share one breaker.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given kind, creating it on first
// use.
func (r *BreakerRegistry) Get(kind string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[kind]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        kind,
		MaxRequests: 3,                // Test requests allowed in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Suspension is control flow, cancellation is the user's doing;
			// neither counts against the breaker.
			if _, isSuspend := AsSuspend(err); isSuspend {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[kind] = cb
	return cb
}

type executorResult struct {
	value any
}

// WithRetry wraps an executor with exponential backoff retry and circuit
// breaker protection. Suspension signals, structural dependency errors, and
// context cancellation pass through immediately and are never retried; only
// genuine execution errors are.
func WithRetry(fn Executor, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) Executor {
	return func(ctx context.Context, tc *TaskContext) (any, error) {
		var resp executorResult

		operation := func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			result, err := cb.Execute(func() (interface{}, error) {
				return fn(ctx, tc)
			})

			if err != nil {
				// Circuit is open - don't retry.
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					return backoff.Permanent(err)
				}
				// Suspension must reach the worker wrapper untouched.
				if _, isSuspend := AsSuspend(err); isSuspend {
					return backoff.Permanent(err)
				}
				// Structural errors won't heal with retries.
				if errors.Is(err, ErrMissingDependency) || errors.Is(err, ErrCircularDependency) {
					return backoff.Permanent(err)
				}
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				return err
			}

			resp = executorResult{value: result}
			return nil
		}

		backoffPolicy := backoff.NewExponentialBackOff()
		backoffPolicy.InitialInterval = retryCfg.InitialInterval
		backoffPolicy.MaxInterval = retryCfg.MaxInterval
		backoffPolicy.MaxElapsedTime = retryCfg.MaxElapsedTime
		backoffPolicy.Multiplier = retryCfg.Multiplier
		backoffPolicy.RandomizationFactor = retryCfg.RandomizationFactor

		err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx))
		if err != nil {
			return nil, err
		}
		return resp.value, nil
	}
}
