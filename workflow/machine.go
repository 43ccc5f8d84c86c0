package workflow

import (
	"fmt"
	"sync"

	"github.com/hupe1980/chimera/core"
)

// Step records one applied transition.
type Step struct {
	From       State
	To         State
	Transition Transition
}

// String renders the step as published on the bus.
func (s Step) String() string {
	return fmt.Sprintf("state %s -> %s (%s)", s.From, s.To, s.Transition)
}

// Machine holds the state of a single run. It starts in StateInit and only
// moves forward.
type Machine struct {
	mu        sync.Mutex
	runID     string
	state     State
	history   []Step
	publisher core.Publisher
}

// NewMachine creates a machine for runID. publisher may be nil, in which case
// transitions are not announced.
func NewMachine(runID string, publisher core.Publisher) *Machine {
	return &Machine{
		runID:     runID,
		state:     StateInit,
		publisher: publisher,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns the transitions applied so far, oldest first.
func (m *Machine) History() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Step, len(m.history))
	copy(out, m.history)
	return out
}

// Fire applies t to the current state. Illegal transitions leave the state
// unchanged and return an *IllegalTransitionError.
func (m *Machine) Fire(t Transition) (State, error) {
	m.mu.Lock()
	step, err := m.apply(t)
	m.mu.Unlock()
	if err != nil {
		return step.From, err
	}
	m.announce(step)
	return step.To, nil
}

// Step advances along the single edge leaving the current state and publishes
// a log event describing the transition. Stepping from StateDone fails with an
// *IllegalTransitionError.
func (m *Machine) Step() (Step, error) {
	m.mu.Lock()
	t, ok := next[m.state]
	if !ok {
		// No edge leaves a terminal state; report the transition the caller
		// was most likely after.
		t = TransitionReviewPass
	}
	step, err := m.apply(t)
	m.mu.Unlock()
	if err != nil {
		return Step{}, err
	}
	m.announce(step)
	return step, nil
}

func (m *Machine) apply(t Transition) (Step, error) {
	from := m.state
	to, err := Advance(from, t)
	if err != nil {
		return Step{From: from}, err
	}
	step := Step{From: from, To: to, Transition: t}
	m.state = to
	m.history = append(m.history, step)
	return step, nil
}

func (m *Machine) announce(step Step) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(core.NewLogEvent(m.runID, step.String()))
}
