package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/hupe1980/chimera/artifact"
	"github.com/hupe1980/chimera/core"
)

// DefaultReportPath is the workspace location of the review report.
const DefaultReportPath = "review.json"

// Report is the outcome of a review.
type Report struct {
	Passed  bool     `json:"passed"`
	Goal    string   `json:"goal"`
	Checked []string `json:"checked"`
	Missing []string `json:"missing,omitempty"`
}

// Review verifies the executed plan: the plan must decode and every file it
// names, plus every artifact recorded in the context, must exist in the
// workspace and, when an artifact store is injected, in the store.
type Review struct {
	opts Options
}

// NewReview creates the review stage.
func NewReview(optFns ...func(o *Options)) *Review {
	return &Review{opts: defaultOptions(optFns)}
}

// ID implements core.Stage.
func (s *Review) ID() core.StageID { return core.StageReview }

// Run implements core.Stage. The output is the Report; a review with missing
// files fails.
func (s *Review) Run(ctx context.Context, in core.StageInput) (core.StageResult, error) {
	slice, ok := in.Slice.(core.ReviewSlice)
	if !ok {
		return core.Failed("review: unexpected slice %T", in.Slice), nil
	}
	ws := in.Deps.Workspace
	if ws == nil {
		return core.StageResult{}, ErrNoWorkspace
	}

	logger := stageLogger(s.ID(), in)

	plan, err := s.plan(slice, in)
	if err != nil {
		return core.Failed("review: %v", err), nil
	}

	expected := plan.Files()
	for _, a := range slice.Artifacts {
		if !slices.Contains(expected, a) {
			expected = append(expected, a)
		}
	}

	report := Report{Goal: plan.Goal, Checked: expected}
	for _, name := range expected {
		if err := ctx.Err(); err != nil {
			return core.StageResult{}, err
		}
		present, err := s.present(in, name)
		if err != nil {
			return core.StageResult{}, err
		}
		if !present {
			report.Missing = append(report.Missing, name)
		}
	}
	report.Passed = len(report.Missing) == 0

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return core.StageResult{}, err
	}
	if err := util.WriteFile(ws, DefaultReportPath, data, 0o644); err != nil {
		return core.StageResult{}, fmt.Errorf("write review report: %w", err)
	}

	if !report.Passed {
		logger.Warn("review failed", "missing", report.Missing)
		return core.StageResult{
			OK:     false,
			Output: report,
			Error:  fmt.Sprintf("review: missing %s", strings.Join(report.Missing, ", ")),
		}, nil
	}

	logger.Info("review passed", "checked", len(report.Checked))
	return core.Succeeded(report), nil
}

// plan prefers the serialized plan of the slice and falls back to the
// workspace copy while the run context still holds the empty plan.
func (s *Review) plan(slice core.ReviewSlice, in core.StageInput) (Plan, error) {
	if slice.Plan != "" && slice.Plan != core.EmptyPlan {
		p, err := DecodePlan(slice.Plan)
		if err != nil {
			return Plan{}, err
		}
		return p, p.Validate()
	}
	p, err := LoadPlan(in.Deps.Workspace, s.opts.PlanPath)
	if err != nil {
		return Plan{}, err
	}
	return p, p.Validate()
}

func (s *Review) present(in core.StageInput, name string) (bool, error) {
	if _, err := in.Deps.Workspace.Stat(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if in.Deps.Artifacts == nil {
		return true, nil
	}
	if _, err := in.Deps.Artifacts.Get(in.RunID, name); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check artifact %s: %w", name, err)
	}
	return true, nil
}
