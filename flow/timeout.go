package flow

import (
	"context"
	"time"

	"github.com/BaSui01/flowgrid/types"
)

// WithTimeout races fn against the deadline d and returns a TIMEOUT error if
// fn has not settled in time. The late settlement of fn is drained on a
// buffered channel so the abandoned goroutine never blocks, and its result
// has no observable effect after the timeout fires.
//
// Every executor honoring a timeout configuration field goes through this
// guard so timeout semantics stay identical across node types. d <= 0 means
// no deadline beyond ctx's own.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if d <= 0 {
		return fn(ctx)
	}

	fnCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type settled struct {
		value T
		err   error
	}
	done := make(chan settled, 1)

	go func() {
		value, err := fn(fnCtx)
		done <- settled{value: value, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return zero, types.NewError(types.ErrExecution, "execution canceled").WithCause(ctx.Err())
	case <-timer.C:
		return zero, types.NewErrorf(types.ErrTimeout, "execution timed out after %s", d).WithRetryable(true)
	}
}
