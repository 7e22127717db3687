package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Retry defaults applied when the config leaves a field zero.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialRetryDelay = 100 * time.Millisecond
	DefaultMaxRetryDelay     = 5 * time.Second
	DefaultBackoffMultiplier = 2.0

	// retryJitterSpread is the +/-20% multiplicative spread applied to each
	// backoff delay.
	retryJitterSpread = 0.2
)

// Attempt records one try inside a retried operation.
type Attempt struct {
	// Number is the 1-based attempt index.
	Number int
	// Duration is how long the attempt itself ran.
	Duration time.Duration
	// Err is the attempt's failure, nil on the successful attempt.
	Err error
	// Delay is the backoff slept after this attempt. Zero on the last one.
	Delay time.Duration
}

// RetryOutcome is the detailed result of a retried operation.
type RetryOutcome[T any] struct {
	Value    T
	Err      error
	Attempts []Attempt
}

// WithRetry runs op until it succeeds, the attempts run out, the error is
// judged non-retryable, or the context is canceled. Backoff between attempts
// is exponential with a +/-20% jitter and a hard cap.
func WithRetry[T any](ctx context.Context, op Operation[T], config models.RetryConfig) (T, error) {
	outcome := WithRetryDetailed(ctx, op, config)
	return outcome.Value, outcome.Err
}

// WithRetryDetailed is WithRetry plus a per-attempt trace: duration, error,
// and the delay slept before the next try.
func WithRetryDetailed[T any](ctx context.Context, op Operation[T], config models.RetryConfig) RetryOutcome[T] {
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	outcome := RetryOutcome[T]{Attempts: make([]Attempt, 0, maxAttempts)}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			return outcome
		}

		started := time.Now()
		value, err := op(ctx)
		record := Attempt{Number: attempt, Duration: time.Since(started), Err: err}

		if err == nil {
			outcome.Value = value
			outcome.Attempts = append(outcome.Attempts, record)
			return outcome
		}

		lastErr = err

		if attempt == maxAttempts || !shouldRetry(err, attempt, config) {
			outcome.Attempts = append(outcome.Attempts, record)
			break
		}

		delay := RetryDelay(attempt, config)
		record.Delay = delay
		outcome.Attempts = append(outcome.Attempts, record)

		if config.OnRetry != nil {
			config.OnRetry(err, attempt, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			outcome.Err = err
			return outcome
		}
	}

	outcome.Err = &errors.RetryExhaustedError{Attempts: len(outcome.Attempts), Cause: lastErr}
	return outcome
}

// shouldRetry decides whether another attempt is worthwhile. An error
// explicitly marked non-retryable always stops; a caller ShouldRetry hook
// decides next; then the RetryOn kind list; finally the error's own
// retryable classification.
func shouldRetry(err error, attempt int, config models.RetryConfig) bool {
	var svcErr *errors.ServiceError
	if stderrors.As(err, &svcErr) && !svcErr.Retryable {
		return false
	}

	if config.ShouldRetry != nil {
		return config.ShouldRetry(err, attempt)
	}

	if len(config.RetryOn) > 0 {
		kind := errors.KindOf(err)
		for _, allowed := range config.RetryOn {
			if allowed.Matches(kind) {
				return true
			}
		}
		return false
	}

	return errors.IsRetryable(err)
}

// RetryDelay computes the backoff slept after the given 1-based attempt:
// min(initial * multiplier^(attempt-1), max), then +/-20% jitter unless
// jitter is disabled, floored at zero.
func RetryDelay(attempt int, config models.RetryConfig) time.Duration {
	initial := config.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialRetryDelay
	}
	maxDelay := config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRetryDelay
	}
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultBackoffMultiplier
	}

	base := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if base > float64(maxDelay) {
		base = float64(maxDelay)
	}

	if config.Jitter != nil && !*config.Jitter {
		return time.Duration(base)
	}

	jittered := base + base*retryJitterSpread*(rand.Float64()*2-1)
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}
