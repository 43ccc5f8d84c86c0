// Package workflow implements the forward-only state machine that tracks a
// pipeline run.
//
//	INIT --start--> PLANNING --plan_ready--> EXECUTING --execution_complete--> REVIEW --review_pass--> DONE
package workflow

import (
	"fmt"

	"github.com/hupe1980/chimera/core"
)

// State is a workflow state.
type State string

const (
	StateInit      State = "INIT"
	StatePlanning  State = "PLANNING"
	StateExecuting State = "EXECUTING"
	StateReview    State = "REVIEW"
	StateDone      State = "DONE"
)

// States lists every state in pipeline order.
var States = []State{StateInit, StatePlanning, StateExecuting, StateReview, StateDone}

// Transition is a named workflow event that drives a state change.
type Transition string

const (
	TransitionStart             Transition = "start"
	TransitionPlanReady         Transition = "plan_ready"
	TransitionExecutionComplete Transition = "execution_complete"
	TransitionReviewPass        Transition = "review_pass"
)

// Transitions lists every transition in pipeline order.
var Transitions = []Transition{
	TransitionStart,
	TransitionPlanReady,
	TransitionExecutionComplete,
	TransitionReviewPass,
}

type edge struct {
	from State
	on   Transition
}

var table = map[edge]State{
	{StateInit, TransitionStart}:                  StatePlanning,
	{StatePlanning, TransitionPlanReady}:          StateExecuting,
	{StateExecuting, TransitionExecutionComplete}: StateReview,
	{StateReview, TransitionReviewPass}:           StateDone,
}

// next maps each non-terminal state to the transition leaving it.
var next = map[State]Transition{
	StateInit:      TransitionStart,
	StatePlanning:  TransitionPlanReady,
	StateExecuting: TransitionExecutionComplete,
	StateReview:    TransitionReviewPass,
}

// IllegalTransitionError is returned for any (state, transition) pair outside
// the transition table.
type IllegalTransitionError struct {
	State      State
	Transition Transition
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %q from state %s", e.Transition, e.State)
}

// Is reports core.ErrIllegalTransition as a match.
func (e *IllegalTransitionError) Is(target error) bool { return target == core.ErrIllegalTransition }

// Advance returns the state reached from s via t. It is a pure lookup.
func Advance(s State, t Transition) (State, error) {
	to, ok := table[edge{s, t}]
	if !ok {
		return s, &IllegalTransitionError{State: s, Transition: t}
	}
	return to, nil
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	_, ok := next[s]
	return !ok
}
