package resilience

import (
	"context"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Config composes the wrappers around one operation. Nil or zero members
// skip that layer.
type Config struct {
	// ServiceName labels errors and the breaker.
	ServiceName string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// Retry re-runs failed attempts on a backoff schedule.
	Retry *models.RetryConfig
	// Breaker fast-fails calls while its service is down. The breaker sees
	// one outcome per composed call, not one per attempt.
	Breaker *CircuitBreaker
}

// Outcome is the detailed result of a composed call.
type Outcome[T any] struct {
	Value T
	Err   error
	// Attempts traces each retry attempt. A single entry means no retries
	// were needed or configured.
	Attempts []Attempt
	// TotalDuration covers the whole composed call, sleeps included.
	TotalDuration time.Duration
	// CircuitBreakerInvolved is true when a breaker guarded the call.
	CircuitBreakerInvolved bool
	// CircuitState is the breaker state after the call, empty without one.
	CircuitState CircuitState
}

// WithResilience runs op wrapped in timeout, retry, and circuit breaker,
// innermost first: every retry attempt gets its own timeout budget, and the
// breaker records a single outcome for the whole retry sequence.
func WithResilience[T any](ctx context.Context, op Operation[T], config Config) (T, error) {
	outcome := WithResilienceDetailed(ctx, op, config)
	return outcome.Value, outcome.Err
}

// WithResilienceDetailed is WithResilience plus attempt traces, total
// duration, and the closing breaker state.
func WithResilienceDetailed[T any](ctx context.Context, op Operation[T], config Config) Outcome[T] {
	started := time.Now()

	outcome := Outcome[T]{
		CircuitBreakerInvolved: config.Breaker != nil,
	}

	attempt := op
	if config.Timeout > 0 {
		inner := attempt
		attempt = func(ctx context.Context) (T, error) {
			return WithTimeout(ctx, inner, TimeoutOptions{Timeout: config.Timeout, ServiceName: config.ServiceName})
		}
	}

	run := func(ctx context.Context) ([]Attempt, T, error) {
		if config.Retry != nil {
			retried := WithRetryDetailed(ctx, attempt, *config.Retry)
			return retried.Attempts, retried.Value, retried.Err
		}
		value, err := attempt(ctx)
		return []Attempt{{Number: 1, Err: err}}, value, err
	}

	if config.Breaker != nil {
		if err := config.Breaker.Allow(); err != nil {
			outcome.Err = err
			outcome.CircuitState = config.Breaker.State()
			outcome.TotalDuration = time.Since(started)
			return outcome
		}
	}

	attempts, value, err := run(ctx)
	outcome.Attempts = attempts
	outcome.Value = value
	outcome.Err = err

	if config.Breaker != nil {
		if err != nil {
			config.Breaker.RecordFailure(err)
		} else {
			config.Breaker.RecordSuccess()
		}
		outcome.CircuitState = config.Breaker.State()
	}

	outcome.TotalDuration = time.Since(started)
	return outcome
}
