package recovery

import (
	"context"
	"time"
)

// WithTimeout races op against a timer of duration d.
//
// If op settles first the timer is stopped and its value and error pass
// through unchanged. If the timer fires first WithTimeout returns a
// *TimeoutError (matching core.ErrTimeout) and the eventual result of op is
// discarded. op runs with ctx, not with a derived deadline, so it is never
// cancelled by the timer. Cancelling ctx stops the wait early with ctx.Err().
//
// A non-positive d disables the timer.
func WithTimeout[T any](ctx context.Context, d time.Duration, op Operation[T]) (T, error) {
	if d <= 0 {
		return call(ctx, op)
	}

	type result struct {
		val T
		err error
	}

	// Buffered so an abandoned operation can still deliver and exit.
	done := make(chan result, 1)
	go func() {
		val, err := call(ctx, op)
		done <- result{val: val, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, &TimeoutError{Timeout: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
