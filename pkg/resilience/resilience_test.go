package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func TestWithResilience(t *testing.T) {
	t.Run("should run the bare operation with an empty config", func(t *testing.T) {
		value, err := WithResilience(context.Background(), func(ctx context.Context) (int, error) {
			return 99, nil
		}, Config{})

		require.NoError(t, err)
		assert.Equal(t, 99, value)
	})

	t.Run("should give each retry attempt its own timeout budget", func(t *testing.T) {
		retry := fastRetry(3)
		calls := 0

		value, err := WithResilience(context.Background(), func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				<-ctx.Done() // simulate a hang; the per-attempt deadline fires
				return "", ctx.Err()
			}
			return "eventually", nil
		}, Config{
			ServiceName: "address-verify",
			Timeout:     20 * time.Millisecond,
			Retry:       &retry,
		})

		require.NoError(t, err)
		assert.Equal(t, "eventually", value)
		assert.Equal(t, 3, calls)
	})

	t.Run("should surface a timeout as a retryable timeout error", func(t *testing.T) {
		retry := fastRetry(2)

		_, err := WithResilience(context.Background(), func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}, Config{
			ServiceName: "address-verify",
			Timeout:     10 * time.Millisecond,
			Retry:       &retry,
		})

		var exhausted *errors.RetryExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 2, exhausted.Attempts)

		var timeout *errors.TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, "address-verify", timeout.ServiceName)
	})

	t.Run("should record one breaker failure for a whole retry sequence", func(t *testing.T) {
		cb := NewCircuitBreaker("flaky", models.BreakerConfig{FailureThreshold: 2})
		retry := fastRetry(3)

		calls := 0
		_, err := WithResilience(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			return 0, retryableErr("down")
		}, Config{ServiceName: "flaky", Retry: &retry, Breaker: cb})

		require.Error(t, err)
		assert.Equal(t, 3, calls)

		// three failed attempts count as one failure, so one more
		// sequence is needed to reach the threshold of two
		assert.Equal(t, CircuitClosed, cb.State())

		_, err = WithResilience(context.Background(), func(ctx context.Context) (int, error) {
			return 0, retryableErr("down")
		}, Config{ServiceName: "flaky", Retry: &retry, Breaker: cb})

		require.Error(t, err)
		assert.Equal(t, CircuitOpen, cb.State())
	})

	t.Run("should fast-fail without calling the operation while open", func(t *testing.T) {
		cb := NewCircuitBreaker("down", models.BreakerConfig{FailureThreshold: 1})
		cb.Trip()

		calls := 0
		_, err := WithResilience(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			return 1, nil
		}, Config{ServiceName: "down", Breaker: cb})

		var open *errors.BreakerOpenError
		require.ErrorAs(t, err, &open)
		assert.Equal(t, "down", open.Name)
		assert.Zero(t, calls)
	})

	t.Run("should record a success and keep the breaker closed", func(t *testing.T) {
		cb := NewCircuitBreaker("healthy", models.BreakerConfig{FailureThreshold: 1})

		value, err := WithResilience(context.Background(), func(ctx context.Context) (string, error) {
			return "ok", nil
		}, Config{ServiceName: "healthy", Breaker: cb})

		require.NoError(t, err)
		assert.Equal(t, "ok", value)
		assert.Equal(t, CircuitClosed, cb.State())
	})

	t.Run("should close the breaker again through half-open probes", func(t *testing.T) {
		cb := NewCircuitBreaker("recovering", models.BreakerConfig{
			FailureThreshold:  1,
			OpenDuration:      time.Millisecond,
			HalfOpenSuccesses: 1,
		})
		cb.Trip()
		time.Sleep(5 * time.Millisecond)

		value, err := WithResilience(context.Background(), func(ctx context.Context) (int, error) {
			return 7, nil
		}, Config{ServiceName: "recovering", Breaker: cb})

		require.NoError(t, err)
		assert.Equal(t, 7, value)
		assert.Equal(t, CircuitClosed, cb.State())
	})
}

func TestWithResilienceDetailed(t *testing.T) {
	t.Run("should trace attempts duration and breaker state", func(t *testing.T) {
		cb := NewCircuitBreaker("traced", models.BreakerConfig{FailureThreshold: 5})
		retry := fastRetry(3)

		calls := 0
		outcome := WithResilienceDetailed(context.Background(), func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", retryableErr("flaky")
			}
			return "done", nil
		}, Config{ServiceName: "traced", Retry: &retry, Breaker: cb})

		require.NoError(t, outcome.Err)
		assert.Equal(t, "done", outcome.Value)
		assert.Len(t, outcome.Attempts, 2)
		assert.True(t, outcome.CircuitBreakerInvolved)
		assert.Equal(t, CircuitClosed, outcome.CircuitState)
		assert.Positive(t, outcome.TotalDuration)
	})

	t.Run("should mark a fast-failed call as breaker involved", func(t *testing.T) {
		cb := NewCircuitBreaker("blocked", models.BreakerConfig{})
		cb.Trip()

		outcome := WithResilienceDetailed(context.Background(), func(ctx context.Context) (int, error) {
			return 0, nil
		}, Config{ServiceName: "blocked", Breaker: cb})

		require.Error(t, outcome.Err)
		assert.True(t, outcome.CircuitBreakerInvolved)
		assert.Equal(t, CircuitOpen, outcome.CircuitState)
		assert.Empty(t, outcome.Attempts)
	})

	t.Run("should report one attempt when retry is not configured", func(t *testing.T) {
		outcome := WithResilienceDetailed(context.Background(), func(ctx context.Context) (int, error) {
			return 5, nil
		}, Config{ServiceName: "single"})

		require.NoError(t, outcome.Err)
		require.Len(t, outcome.Attempts, 1)
		assert.Equal(t, 1, outcome.Attempts[0].Number)
	})
}
