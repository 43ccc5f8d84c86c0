package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/chimera/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutPassesValueThrough(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestWithTimeoutPassesErrorThrough(t *testing.T) {
	boom := errors.New("boom")
	_, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, core.ErrTimeout)
}

func TestWithTimeoutExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutDoesNotCancelOperation(t *testing.T) {
	var finished atomic.Bool
	completed := make(chan struct{})

	_, err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(40 * time.Millisecond)
		if ctx.Err() == nil {
			finished.Store(true)
		}
		close(completed)
		return 1, nil
	})
	require.ErrorIs(t, err, core.ErrTimeout)

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("abandoned operation never completed")
	}
	assert.True(t, finished.Load())
}

func TestWithTimeoutRecoversPanic(t *testing.T) {
	_, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		panic("kaboom")
	})

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Equal(t, "panic: kaboom", err.Error())
}

func TestWithTimeoutDisabled(t *testing.T) {
	v, err := WithTimeout(context.Background(), 0, func(context.Context) (int, error) {
		time.Sleep(5 * time.Millisecond)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestWithTimeoutContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, time.Minute, func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetriesCallsFourTimesWithExponentialDelays(t *testing.T) {
	const base = 20 * time.Millisecond

	var calls []time.Time
	var delays []time.Duration

	_, err := WithRetries(context.Background(), 3, base, func(context.Context) (int, error) {
		calls = append(calls, time.Now())
		return 0, fmt.Errorf("attempt %d failed", len(calls))
	}, OnRetry(func(_ int, _ error, d time.Duration) {
		delays = append(delays, d)
	}))

	require.Error(t, err)
	assert.EqualError(t, err, "attempt 4 failed")
	require.Len(t, calls, 4)
	assert.Equal(t, []time.Duration{base, 2 * base, 4 * base}, delays)

	for i := 1; i < len(calls); i++ {
		want := base << (i - 1)
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), want, "gap before attempt %d", i)
	}
}

func TestWithRetriesReturnsFirstSuccess(t *testing.T) {
	attempts := 0
	v, err := WithRetries(context.Background(), 3, time.Millisecond, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, attempts)
}

func TestWithRetriesZeroRetries(t *testing.T) {
	attempts := 0
	_, err := WithRetries(context.Background(), 0, time.Millisecond, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetriesNormalizesPanics(t *testing.T) {
	attempts := 0
	_, err := WithRetries(context.Background(), 2, time.Millisecond, func(context.Context) (int, error) {
		attempts++
		panic(fmt.Sprintf("panic %d", attempts))
	})

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "panic 3", pe.Value)
	assert.Equal(t, 3, attempts)
}

func TestWithRetriesPermanentStops(t *testing.T) {
	fatal := errors.New("fatal")
	attempts := 0
	_, err := WithRetries(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		attempts++
		return 0, Permanent(fatal)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, fatal, err)
	assert.False(t, IsPermanent(err))
}

func TestWithRetriesContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	_, err := WithRetries(ctx, 5, 50*time.Millisecond, func(context.Context) (int, error) {
		attempts++
		cancel()
		return 0, errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWithRetriesGivesEachAttemptAFreshTimeout(t *testing.T) {
	var attempts atomic.Int32
	v, err := WithRetries(context.Background(), 3, time.Millisecond, func(ctx context.Context) (int, error) {
		return WithTimeout(ctx, 20*time.Millisecond, func(context.Context) (int, error) {
			n := attempts.Add(1)
			if n == 1 {
				time.Sleep(60 * time.Millisecond)
			}
			return int(n), nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}

func TestScheduleDelays(t *testing.T) {
	b := Schedule(3, 100*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 400*time.Millisecond, b.NextBackOff())
	assert.Less(t, b.NextBackOff(), time.Duration(0))
}
