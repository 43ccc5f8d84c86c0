package stage

import (
	"context"
	"fmt"

	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/internal/prompt"
)

// Synthesis turns the refined request into a Plan and persists it to the
// workspace.
type Synthesis struct {
	opts Options
}

// NewSynthesis creates the synthesis stage.
func NewSynthesis(optFns ...func(o *Options)) *Synthesis {
	return &Synthesis{opts: defaultOptions(optFns)}
}

// ID implements core.Stage.
func (s *Synthesis) ID() core.StageID { return core.StageSynthesis }

// Run implements core.Stage. The output is a core.ContextPatch carrying the
// serialized plan and its first step.
func (s *Synthesis) Run(ctx context.Context, in core.StageInput) (core.StageResult, error) {
	slice, ok := in.Slice.(core.SynthesisSlice)
	if !ok {
		return core.Failed("synthesis: unexpected slice %T", in.Slice), nil
	}
	if in.Deps.Workspace == nil {
		return core.StageResult{}, ErrNoWorkspace
	}

	logger := stageLogger(s.ID(), in)

	answer, err := ask(ctx, in, s.opts.System, synthesisPrompt, struct {
		core.SynthesisSlice
		Schema string
	}{slice, prompt.SchemaJSON(Plan{})}, logger)
	if err != nil {
		return core.StageResult{}, err
	}

	plan, err := DecodePlan(answer)
	if err != nil {
		return core.Failed("synthesis: %v", err), nil
	}
	if err := plan.Validate(); err != nil {
		return core.Failed("synthesis: invalid plan: %v", err), nil
	}

	if err := SavePlan(in.Deps.Workspace, s.opts.PlanPath, plan); err != nil {
		return core.StageResult{}, fmt.Errorf("persist plan: %w", err)
	}
	encoded, err := plan.Encode()
	if err != nil {
		return core.StageResult{}, err
	}

	logger.Info("plan persisted", "path", s.opts.PlanPath, "steps", len(plan.Steps))

	return core.Succeeded(core.ContextPatch{
		Plan:        ptr(encoded),
		CurrentStep: ptr(plan.Steps[0].ID),
	}), nil
}
