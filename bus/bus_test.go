package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/chimera/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(core.EventLog, func(core.Event) { order = append(order, "first") })
	b.Subscribe(core.EventLog, func(core.Event) { order = append(order, "second") })
	b.Subscribe(core.EventError, func(core.Event) { order = append(order, "error") })

	b.Publish(core.NewLogEvent("run", "hello"))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishWithoutSubscribersIsRecorded(t *testing.T) {
	b := New()
	b.Publish(core.NewLogEvent("run", "lonely"))

	h := b.History(0)
	require.Len(t, h, 1)
	assert.Equal(t, "lonely", h[0].Tag())
}

func TestHistoryCapEvictsOldestFirst(t *testing.T) {
	b := New()
	for i := 0; i < 1001; i++ {
		b.Publish(core.NewLogEvent("run", fmt.Sprintf("e%d", i)))
	}

	h := b.History(0)
	require.Len(t, h, DefaultHistoryCap)
	assert.Equal(t, "e1", h[0].Tag())
	assert.Equal(t, "e1000", h[len(h)-1].Tag())
	assert.Equal(t, DefaultHistoryCap, b.Len())
}

func TestCustomHistoryCap(t *testing.T) {
	b := New(func(o *Options) { o.HistoryCap = 3 })
	for i := 0; i < 5; i++ {
		b.Publish(core.NewLogEvent("run", fmt.Sprintf("e%d", i)))
	}

	var tags []string
	for _, ev := range b.History(0) {
		tags = append(tags, ev.Tag())
	}
	assert.Equal(t, []string{"e2", "e3", "e4"}, tags)
	assert.Equal(t, 3, b.Cap())
}

func TestInvalidHistoryCapFallsBack(t *testing.T) {
	b := New(func(o *Options) { o.HistoryCap = -1 })
	assert.Equal(t, DefaultHistoryCap, b.Cap())
}

func TestHistoryLimit(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Publish(core.NewLogEvent("run", fmt.Sprintf("e%d", i)))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all with zero", 0, []string{"e0", "e1", "e2", "e3", "e4"}},
		{"all with negative", -2, []string{"e0", "e1", "e2", "e3", "e4"}},
		{"most recent two", 2, []string{"e3", "e4"}},
		{"limit above length", 10, []string{"e0", "e1", "e2", "e3", "e4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, ev := range b.History(tt.limit) {
				got = append(got, ev.Tag())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	b := New()
	b.Publish(core.NewLogEvent("run", "original"))

	h := b.History(0)
	h[0].Payload = "mutated"

	assert.Equal(t, "original", b.History(0)[0].Tag())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()

	var a, c int
	unsubA := b.Subscribe(core.EventLog, func(core.Event) { a++ })
	b.Subscribe(core.EventLog, func(core.Event) { c++ })

	b.Publish(core.NewLogEvent("run", "one"))
	unsubA()
	unsubA()
	b.Publish(core.NewLogEvent("run", "two"))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, c)
}

func TestUnsubscribeRemovesOnlyOwnRegistration(t *testing.T) {
	b := New()

	var calls int
	h := func(core.Event) { calls++ }
	unsub1 := b.Subscribe(core.EventLog, h)
	b.Subscribe(core.EventLog, h)

	unsub1()
	b.Publish(core.NewLogEvent("run", "x"))

	assert.Equal(t, 1, calls)
}

func TestSubscribeAll(t *testing.T) {
	b := New()

	var seen []core.EventType
	unsub := b.SubscribeAll(func(ev core.Event) { seen = append(seen, ev.Type) })

	b.Publish(core.NewLogEvent("run", "x"))
	b.Publish(core.NewErrorEvent("run", "intake", "boom", nil))
	unsub()
	b.Publish(core.NewLogEvent("run", "y"))

	assert.Equal(t, []core.EventType{core.EventLog, core.EventError}, seen)
}

func TestHandlerMayPublish(t *testing.T) {
	b := New()

	b.Subscribe(core.EventError, func(ev core.Event) {
		b.Publish(core.NewLogEvent(ev.RunID, "handled"))
	})
	b.Publish(core.NewErrorEvent("run", "review", "bad", nil))

	h := b.History(0)
	require.Len(t, h, 2)
	assert.Equal(t, core.EventError, h[0].Type)
	assert.Equal(t, "handled", h[1].Tag())
}

func TestHandlerPanicPropagates(t *testing.T) {
	b := New()
	b.Subscribe(core.EventLog, func(core.Event) { panic("handler failure") })

	assert.PanicsWithValue(t, "handler failure", func() {
		b.Publish(core.NewLogEvent("run", "x"))
	})
	assert.Equal(t, 1, b.Len())
}

func TestConcurrentPublish(t *testing.T) {
	b := New(func(o *Options) { o.HistoryCap = 50 })

	var mu sync.Mutex
	count := 0
	b.Subscribe(core.EventLog, func(core.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.Publish(core.NewLogEvent("run", "x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, count)
	assert.Equal(t, 50, b.Len())
}
