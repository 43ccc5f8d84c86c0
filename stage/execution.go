package stage

import (
	"context"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5/util"
	"github.com/hupe1980/chimera/core"
)

// Execution writes every file step of the persisted plan. Steps that carry
// no content are generated by the model. Re-running the stage overwrites
// earlier output.
type Execution struct {
	opts Options
}

// NewExecution creates the execution stage.
func NewExecution(optFns ...func(o *Options)) *Execution {
	return &Execution{opts: defaultOptions(optFns)}
}

// ID implements core.Stage.
func (s *Execution) ID() core.StageID { return core.StageExecution }

// Run implements core.Stage. The output is a core.ContextPatch listing the
// written files as artifacts.
func (s *Execution) Run(ctx context.Context, in core.StageInput) (core.StageResult, error) {
	slice, ok := in.Slice.(core.ExecutionSlice)
	if !ok {
		return core.Failed("execution: unexpected slice %T", in.Slice), nil
	}
	ws := in.Deps.Workspace
	if ws == nil {
		return core.StageResult{}, ErrNoWorkspace
	}

	logger := stageLogger(s.ID(), in)

	plan, err := LoadPlan(ws, s.opts.PlanPath)
	if err != nil {
		return core.Failed("execution: %v", err), nil
	}

	// Resume from the current step when one is known.
	steps := plan.Steps
	for i, st := range steps {
		if st.ID == slice.CurrentStep {
			steps = steps[i:]
			break
		}
	}

	var written []string
	last := slice.CurrentStep
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return core.StageResult{}, err
		}
		last = st.ID
		if st.Path == "" {
			continue
		}

		content := st.Content
		if content == "" {
			answer, err := ask(ctx, in, s.opts.System, generationPrompt, struct {
				Goal string
				Step Step
			}{plan.Goal, st}, logger)
			if err != nil {
				return core.StageResult{}, fmt.Errorf("generate %s: %w", st.Path, err)
			}
			content = stripFences(answer)
		}

		if dir := path.Dir(st.Path); dir != "." {
			if err := ws.MkdirAll(dir, 0o755); err != nil {
				return core.StageResult{}, err
			}
		}
		if err := util.WriteFile(ws, st.Path, []byte(content), 0o644); err != nil {
			return core.StageResult{}, fmt.Errorf("write %s: %w", st.Path, err)
		}
		if in.Deps.Artifacts != nil {
			if err := in.Deps.Artifacts.Save(in.RunID, st.Path, []byte(content)); err != nil {
				return core.StageResult{}, fmt.Errorf("save artifact %s: %w", st.Path, err)
			}
		}

		logger.Debug("file written", "step", st.ID, "path", st.Path, "bytes", len(content))
		written = append(written, st.Path)
	}

	logger.Info("plan executed", "files", len(written))

	return core.Succeeded(core.ContextPatch{
		CurrentStep: ptr(last),
		Artifacts:   nonNil(written),
	}), nil
}
