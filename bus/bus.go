package bus

import (
	"sync"

	"github.com/hupe1980/chimera/core"
)

// DefaultHistoryCap is the number of events retained when no cap is configured.
const DefaultHistoryCap = 1000

// Options configures a Bus.
type Options struct {
	// HistoryCap bounds the retained history. Values <= 0 fall back to
	// DefaultHistoryCap.
	HistoryCap int
}

type subscription struct {
	id      uint64
	handler core.Handler
}

// Bus is a synchronous publish/subscribe hub with bounded FIFO history.
type Bus struct {
	mu       sync.Mutex
	cap      int
	history  []core.Event
	handlers map[core.EventType][]subscription
	nextID   uint64
}

var _ core.EventBus = (*Bus)(nil)

// New creates a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{HistoryCap: DefaultHistoryCap}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	return &Bus{
		cap:      opts.HistoryCap,
		history:  make([]core.Event, 0, min(opts.HistoryCap, 64)),
		handlers: make(map[core.EventType][]subscription),
	}
}

// Subscribe registers h for events of type t. The returned function removes
// exactly this registration; calling it more than once is a no-op.
func (b *Bus) Subscribe(t core.EventType, h core.Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t, id) })
	}
}

// SubscribeAll registers h for every event type. The returned function removes
// all of those registrations.
func (b *Bus) SubscribeAll(h core.Handler) func() {
	unsubs := make([]func(), 0, len(core.EventTypes))
	for _, t := range core.EventTypes {
		unsubs = append(unsubs, b.Subscribe(t, h))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (b *Bus) remove(t core.EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[t]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so snapshots handed to in-flight publishers stay intact.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, t)
		} else {
			b.handlers[t] = next
		}
		return
	}
}

// Publish records ev in the history and delivers it to the handlers of its
// type. Handlers run after the lock is released, so they may publish or
// subscribe themselves.
func (b *Bus) Publish(ev core.Event) {
	b.mu.Lock()
	if len(b.history) >= b.cap {
		// Shift instead of reslicing so the backing array does not grow forever.
		n := copy(b.history, b.history[len(b.history)-b.cap+1:])
		b.history = b.history[:n]
	}
	b.history = append(b.history, ev)
	subs := b.handlers[ev.Type]
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

// History returns the most recent limit events, oldest first. A limit <= 0
// returns the whole history. The result is an independent copy.
func (b *Bus) History(limit int) []core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if limit > 0 && limit < len(b.history) {
		start = len(b.history) - limit
	}
	out := make([]core.Event, len(b.history)-start)
	copy(out, b.history[start:])
	return out
}

// Len reports the number of retained events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// Cap reports the configured history capacity.
func (b *Bus) Cap() int { return b.cap }
