package stage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hupe1980/chimera/core"
)

// Refinement is the structured answer of the intake model call.
type Refinement struct {
	Refined     string   `json:"refined"`
	Assumptions []string `json:"assumptions"`
	Constraints []string `json:"constraints"`
}

// Intake refines the raw user request. Without a model it passes the request
// through unchanged.
type Intake struct {
	opts Options
}

// NewIntake creates the intake stage.
func NewIntake(optFns ...func(o *Options)) *Intake {
	return &Intake{opts: defaultOptions(optFns)}
}

// ID implements core.Stage.
func (s *Intake) ID() core.StageID { return core.StageIntake }

// Run implements core.Stage. The output is a core.ContextPatch carrying the
// refinement.
func (s *Intake) Run(ctx context.Context, in core.StageInput) (core.StageResult, error) {
	slice, ok := in.Slice.(core.IntakeSlice)
	if !ok {
		return core.Failed("intake: unexpected slice %T", in.Slice), nil
	}
	wctx := slice.Context
	if strings.TrimSpace(wctx.UserInput) == "" {
		return core.Failed("intake: empty request"), nil
	}

	logger := stageLogger(s.ID(), in)

	ref := Refinement{Refined: wctx.UserInput}
	if in.Deps.Model != nil {
		answer, err := ask(ctx, in, s.opts.System, intakePrompt, wctx, logger)
		if err != nil {
			return core.StageResult{}, err
		}
		ref = parseRefinement(answer, wctx.UserInput)
	}

	logger.Info("request refined", "assumptions", len(ref.Assumptions), "constraints", len(ref.Constraints))

	return core.Succeeded(core.ContextPatch{
		Refined:     ptr(ref.Refined),
		Assumptions: nonNil(ref.Assumptions),
		Constraints: nonNil(ref.Constraints),
	}), nil
}

// parseRefinement decodes the model answer. Answers that are not JSON are
// taken as the refined text.
func parseRefinement(answer, fallback string) Refinement {
	var ref Refinement
	if raw := extractJSON(answer); raw != "" && json.Unmarshal([]byte(raw), &ref) == nil {
		if strings.TrimSpace(ref.Refined) == "" {
			ref.Refined = fallback
		}
		return ref
	}
	if answer == "" {
		answer = fallback
	}
	return Refinement{Refined: answer}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
