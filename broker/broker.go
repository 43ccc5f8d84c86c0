// Package broker derives the restricted view of the run context each stage is
// allowed to observe.
package broker

import (
	"slices"

	"github.com/hupe1980/chimera/core"
)

// BuildContextSlice returns the slice of full visible to stage id. Every list
// field in the result is a fresh copy, so stages cannot mutate the run
// context through it. Unknown identities and a nil context yield
// core.EmptySlice.
func BuildContextSlice(id core.StageID, full *core.WorkflowContext) core.Slice {
	if full == nil {
		return core.EmptySlice{}
	}

	switch id {
	case core.StageIntake:
		return core.IntakeSlice{Context: *full.Clone()}
	case core.StageSynthesis:
		refined := full.Refined
		if refined == "" {
			refined = full.UserInput
		}
		return core.SynthesisSlice{
			Refined:     refined,
			Assumptions: nonNil(full.Assumptions),
			Constraints: nonNil(full.Constraints),
			Plan:        full.Plan,
		}
	case core.StageExecution:
		return core.ExecutionSlice{
			CurrentStep: full.CurrentStep,
			Artifacts:   nonNil(full.Artifacts),
		}
	case core.StageReview:
		return core.ReviewSlice{
			Plan:      full.Plan,
			Artifacts: nonNil(full.Artifacts),
		}
	default:
		return core.EmptySlice{}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
