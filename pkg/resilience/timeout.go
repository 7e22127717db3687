// Package resilience wraps operations against unreliable dependencies with
// timeouts, retries, and circuit breakers, individually or composed.
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
)

// Operation is any cancellable unit of work a wrapper can run.
type Operation[T any] func(ctx context.Context) (T, error)

// TimeoutOptions bounds one operation call.
type TimeoutOptions struct {
	// Timeout is the deadline budget. Zero or negative disables the wrapper.
	Timeout time.Duration
	// ServiceName labels the TimeoutError for callers and logs.
	ServiceName string
}

// WithTimeout runs op under a deadline. The op receives a context that
// expires with the deadline; an op that honors it returns promptly, an op
// that ignores it keeps running in the background while the caller gets a
// TimeoutError. Cancellation of the parent context fails the call with the
// same error type, flagged as canceled.
func WithTimeout[T any](ctx context.Context, op Operation[T], opts TimeoutOptions) (T, error) {
	var zero T

	if opts.Timeout <= 0 {
		return op(ctx)
	}

	if err := ctx.Err(); err != nil {
		return zero, &errors.TimeoutError{ServiceName: opts.ServiceName, After: opts.Timeout, Canceled: true}
	}

	opCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	// Buffered so a late finisher can always deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		value, err := op(opCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && stderrors.Is(out.err, context.DeadlineExceeded) && opCtx.Err() != nil {
			// cooperative ops surface the deadline themselves; normalize it
			return zero, &errors.TimeoutError{ServiceName: opts.ServiceName, After: opts.Timeout, Canceled: ctx.Err() != nil}
		}
		return out.value, out.err
	case <-opCtx.Done():
		return zero, &errors.TimeoutError{ServiceName: opts.ServiceName, After: opts.Timeout, Canceled: ctx.Err() != nil}
	}
}

// sleep waits for d or until the context is done, whichever comes first.
// The timer is released on both paths.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
