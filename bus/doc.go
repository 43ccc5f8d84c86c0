// Package bus implements the in-process event bus shared by the engine and the
// pipeline stages.
//
// Publication is synchronous: Publish appends the event to a bounded history
// and then invokes every handler registered for the event type, in
// registration order, on the caller's goroutine. Handler panics propagate to
// the publisher.
//
// Example:
//
//	b := bus.New()
//	unsubscribe := b.Subscribe(core.EventError, func(ev core.Event) {
//		p, _ := ev.ErrorPayload()
//		fmt.Println(p.Agent, p.Message)
//	})
//	defer unsubscribe()
package bus
