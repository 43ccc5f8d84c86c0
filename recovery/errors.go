package recovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/chimera/core"
)

// Operation is the unit of work wrapped by the combinators.
type Operation[T any] func(ctx context.Context) (T, error)

// PanicError is a panic raised inside an operation, normalized into an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// TimeoutError reports that an operation did not settle within its budget.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

// Is reports core.ErrTimeout as a match.
func (e *TimeoutError) Is(target error) bool { return target == core.ErrTimeout }

// Permanent wraps err so that WithRetries returns it immediately instead of
// retrying. The original error is returned to the caller, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// call invokes op and converts a panic into a *PanicError.
func call[T any](ctx context.Context, op Operation[T]) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return op(ctx)
}
