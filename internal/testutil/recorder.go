package testutil

import (
	"sync"

	"github.com/hupe1980/chimera/core"
)

// Recorder captures every event delivered to it. Attach it to a bus with
// SubscribeAll:
//
//	rec := testutil.NewRecorder()
//	defer b.SubscribeAll(rec.Handle)()
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Handle records ev. It satisfies core.Handler.
func (r *Recorder) Handle(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Publish records ev. It satisfies core.Publisher.
func (r *Recorder) Publish(ev core.Event) { r.Handle(ev) }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t core.EventType) []core.Event {
	var out []core.Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Tags returns the string payloads of the recorded log events, in order.
func (r *Recorder) Tags() []string {
	var out []string
	for _, ev := range r.OfType(core.EventLog) {
		out = append(out, ev.Tag())
	}
	return out
}

// Errors returns the payloads of the recorded error events.
func (r *Recorder) Errors() []core.ErrorPayload {
	var out []core.ErrorPayload
	for _, ev := range r.OfType(core.EventError) {
		p, _ := ev.ErrorPayload()
		out = append(out, p)
	}
	return out
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
