package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/internal/prompt"
	"github.com/hupe1980/chimera/logging"
	"github.com/hupe1980/chimera/model"
)

// ErrNoModel is returned by stages that need a model when none is injected.
var ErrNoModel = errors.New("no model configured")

// ErrNoWorkspace is returned by stages that need a workspace when none is injected.
var ErrNoWorkspace = errors.New("no workspace configured")

// Options configures the reference stages.
type Options struct {
	// PlanPath is the workspace path of the persisted plan.
	// Defaults to DefaultPlanPath.
	PlanPath string

	// System is the system prompt sent with every model request.
	System string
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{PlanPath: DefaultPlanPath, System: systemPrompt}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Pipeline returns the four reference stages in pipeline order.
func Pipeline(optFns ...func(o *Options)) []core.Stage {
	return []core.Stage{
		NewIntake(optFns...),
		NewSynthesis(optFns...),
		NewExecution(optFns...),
		NewReview(optFns...),
	}
}

func stageLogger(id core.StageID, in core.StageInput) logging.Logger {
	return logging.With(in.Deps.Logger, "run_id", in.RunID, "stage", string(id))
}

// ask renders tmpl, sends it to the injected model and returns the trimmed
// completion text.
func ask(ctx context.Context, in core.StageInput, system, tmpl string, data any, logger logging.Logger) (string, error) {
	if in.Deps.Model == nil {
		return "", ErrNoModel
	}

	text, err := prompt.Render(tmpl, data)
	if err != nil {
		return "", err
	}

	started := time.Now()
	resp, err := model.Complete(ctx, in.Deps.Model, model.UserRequest(system, text))
	info := in.Deps.Model.Info()
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogModelCall(logger, info.Name, info.Provider, tokens, time.Since(started), err)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", info.Name, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func ptr[T any](v T) *T { return &v }

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = ""
	}
	t = strings.TrimSuffix(strings.TrimRight(t, " \n"), "```")
	return strings.TrimRight(t, " \n") + "\n"
}
