package testutil

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/chimera/core"
)

// StageFunc adapts a function into a core.Stage and counts its calls.
//
//	s := testutil.NewStageFunc(core.StageExecution, func(ctx context.Context, in core.StageInput) (core.StageResult, error) {
//		return core.StageResult{}, errors.New("boom")
//	})
type StageFunc struct {
	id    core.StageID
	fn    func(ctx context.Context, in core.StageInput) (core.StageResult, error)
	calls atomic.Int64
	last  atomic.Pointer[core.StageInput]
}

// NewStageFunc creates a stage that delegates to fn.
func NewStageFunc(id core.StageID, fn func(ctx context.Context, in core.StageInput) (core.StageResult, error)) *StageFunc {
	return &StageFunc{id: id, fn: fn}
}

// Succeed creates a stage that always succeeds with output.
func Succeed(id core.StageID, output any) *StageFunc {
	return NewStageFunc(id, func(context.Context, core.StageInput) (core.StageResult, error) {
		return core.Succeeded(output), nil
	})
}

// ID implements core.Stage.
func (s *StageFunc) ID() core.StageID { return s.id }

// Run implements core.Stage.
func (s *StageFunc) Run(ctx context.Context, in core.StageInput) (core.StageResult, error) {
	s.calls.Add(1)
	s.last.Store(&in)
	return s.fn(ctx, in)
}

// Calls reports how many times Run was invoked.
func (s *StageFunc) Calls() int { return int(s.calls.Load()) }

// LastInput returns the input of the most recent call, if any.
func (s *StageFunc) LastInput() (core.StageInput, bool) {
	in := s.last.Load()
	if in == nil {
		return core.StageInput{}, false
	}
	return *in, true
}

// Pipeline returns four always-succeeding stages in pipeline order.
func Pipeline() []core.Stage {
	stages := make([]core.Stage, 0, len(core.Pipeline))
	for _, id := range core.Pipeline {
		stages = append(stages, Succeed(id, nil))
	}
	return stages
}
