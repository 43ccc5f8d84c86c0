package recovery

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions configures WithRetries.
type RetryOptions struct {
	// OnRetry is called before each retry delay with the 1-based retry
	// number, the error of the failed attempt and the delay about to elapse.
	OnRetry func(retry int, err error, delay time.Duration)
}

// OnRetry registers fn as the retry observer.
func OnRetry(fn func(retry int, err error, delay time.Duration)) func(o *RetryOptions) {
	return func(o *RetryOptions) {
		o.OnRetry = fn
	}
}

// Schedule returns the exponential back-off used by WithRetries: base,
// 2*base, 4*base, ... without jitter, stopping after maxRetries delays.
func Schedule(maxRetries int, base time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = time.Duration(math.MaxInt64)
	eb.MaxElapsedTime = 0
	eb.Reset()

	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(eb, uint64(maxRetries))
}

// WithRetries runs op until it succeeds, making at most maxRetries+1 attempts.
// Attempt 0 runs immediately; retry n waits base*2^(n-1) first. The first
// success is returned, otherwise the error of the last attempt. Panics inside
// op are recovered into *PanicError and treated like any other failure.
// Errors wrapped with Permanent end the loop at once. Cancelling ctx stops
// further attempts and returns ctx.Err().
func WithRetries[T any](
	ctx context.Context,
	maxRetries int,
	base time.Duration,
	op Operation[T],
	optFns ...func(o *RetryOptions),
) (T, error) {
	opts := RetryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := backoff.WithContext(Schedule(maxRetries, base), ctx)

	retry := 0
	notify := func(err error, delay time.Duration) {
		retry++
		if opts.OnRetry != nil {
			opts.OnRetry(retry, err, delay)
		}
	}

	val, err := backoff.RetryNotifyWithData(func() (T, error) {
		if cerr := ctx.Err(); cerr != nil {
			var zero T
			return zero, backoff.Permanent(cerr)
		}
		return call(ctx, op)
	}, b, notify)

	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return val, p.Err
	}
	return val, err
}
