// Package recovery provides generic timeout and retry combinators.
//
// Both combinators are independent of workflow semantics. The engine composes
// them as WithRetries(WithTimeout(op)) so every attempt receives a fresh time
// budget:
//
//	v, err := recovery.WithRetries(ctx, 3, 250*time.Millisecond, func(ctx context.Context) (string, error) {
//		return recovery.WithTimeout(ctx, time.Minute, call)
//	})
//
// Timeouts are cooperative. When the timer fires the operation is abandoned,
// not cancelled: it keeps running with the caller's context and may still
// complete side effects after WithTimeout has returned.
package recovery
