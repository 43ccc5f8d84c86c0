package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/chimera/broker"
	"github.com/hupe1980/chimera/bus"
	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/logging"
	"github.com/hupe1980/chimera/recovery"
	"github.com/hupe1980/chimera/workflow"
)

// ErrRunInProgress is returned by Run when the engine is already executing a
// pipeline. One Engine drives one run at a time.
var ErrRunInProgress = errors.New("engine: run already in progress")

// Config defines the tuning parameters of stage execution.
//
// Every stage call is wrapped as
//
//	WithRetries(WithTimeout(stage.Run, StageTimeout), MaxRetries, RetryBaseDelay)
//
// so each attempt receives a fresh timeout budget.
type Config struct {
	// StageTimeout bounds a single stage attempt. The timeout is
	// cooperative: a timed-out stage keeps running in the background and
	// may still complete side effects. Zero disables the timeout.
	StageTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt, so a
	// stage is called at most MaxRetries+1 times.
	MaxRetries int

	// RetryBaseDelay is the delay before the first retry. Retry n waits
	// RetryBaseDelay * 2^(n-1).
	RetryBaseDelay time.Duration

	// MergeBack applies a core.ContextPatch returned as StageResult.Output
	// to the run context before the next slice is built. Disabled by
	// default: stages only read their slices and the run context keeps its
	// initial values.
	MergeBack bool
}

// DefaultConfig provides the default stage execution parameters.
//
// Configuration values:
//   - StageTimeout: 60s
//   - MaxRetries: 3 (four attempts in total)
//   - RetryBaseDelay: 250ms (delays of 250ms, 500ms, 1s)
//   - MergeBack: false
var DefaultConfig = Config{
	StageTimeout:   60 * time.Second,
	MaxRetries:     3,
	RetryBaseDelay: 250 * time.Millisecond,
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng, err := engine.New(stages,
//	    func(o *engine.Options) {
//	        o.Config.MaxRetries = 1
//	        o.Logger = logger
//	    },
//	    engine.WithMergeBack(),
//	)
type Options struct {
	// Config contains the stage execution parameters.
	// Defaults to DefaultConfig.
	Config Config

	// Bus receives every lifecycle event. Defaults to a fresh bus.New().
	Bus core.EventBus

	// Dependencies are injected into every stage.
	Dependencies core.Dependencies

	// StageDependencies override Dependencies for individual stages.
	StageDependencies map[core.StageID]core.Dependencies

	// Callbacks are executed at stage lifecycle points. Optional.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to a no-op logger.
	Logger logging.Logger
}

// WithMergeBack enables merging stage outputs back into the run context.
func WithMergeBack() func(o *Options) {
	return func(o *Options) {
		o.Config.MergeBack = true
	}
}

// stageEntry is one row of the dispatch table.
type stageEntry struct {
	stage core.Stage
	deps  core.Dependencies
}

// Engine sequences the four pipeline stages of a run.
//
// For every stage in core.Pipeline order the engine:
//  1. publishes the log tag "agent-start-<stage>"
//  2. advances the workflow state machine (which publishes its transition)
//  3. builds the stage's context slice and calls the stage through the
//     retry and timeout wrappers
//  4. publishes "agent-end-<stage>" on success, or an error event and aborts
//     on exhausted failure
//
// The run is framed by "workflow-start" and "workflow-complete" log events.
// The WorkflowContext of a run is owned by the engine; stages only see the
// slices the broker grants them.
type Engine struct {
	stages    map[core.StageID]stageEntry
	bus       core.EventBus
	config    Config
	callbacks *CallbackManager
	logger    logging.Logger

	running atomic.Bool

	mu      sync.RWMutex
	records []core.AgentExecutionRecord
	last    *core.WorkflowContext
	runID   string
}

// New creates an Engine for the given stages. Every pipeline stage must be
// present exactly once; a missing or unknown stage identity fails with
// core.ErrUnknownStage.
func New(stages []core.Stage, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Config.MaxRetries < 0 {
		return nil, fmt.Errorf("engine: max retries must not be negative, got %d", opts.Config.MaxRetries)
	}

	table := make(map[core.StageID]stageEntry, len(core.Pipeline))
	for _, s := range stages {
		if s == nil {
			return nil, errors.New("engine: nil stage")
		}
		id := s.ID()
		if !id.Valid() {
			return nil, fmt.Errorf("engine: %w: %q", core.ErrUnknownStage, id)
		}
		if _, dup := table[id]; dup {
			return nil, fmt.Errorf("engine: duplicate stage %q", id)
		}
		deps := opts.Dependencies
		if override, ok := opts.StageDependencies[id]; ok {
			deps = override
		}
		if deps.Logger == nil {
			deps.Logger = opts.Logger
		}
		table[id] = stageEntry{stage: s, deps: deps}
	}
	for _, id := range core.Pipeline {
		if _, ok := table[id]; !ok {
			return nil, fmt.Errorf("engine: %w: no stage registered for %q", core.ErrUnknownStage, id)
		}
	}

	return &Engine{
		stages:    table,
		bus:       opts.Bus,
		config:    opts.Config,
		callbacks: opts.Callbacks,
		logger:    logging.With(opts.Logger, "component", "engine"),
	}, nil
}

// Bus returns the event bus the engine publishes on.
func (e *Engine) Bus() core.EventBus { return e.bus }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Run executes the full pipeline for userInput. It returns nil when all four
// stages succeed. On failure it returns the error of the failing stage (a
// *core.StageError matching core.ErrStageFailed) or of the state machine
// (matching core.ErrIllegalTransition); no later stage runs and no completion
// event is published.
func (e *Engine) Run(ctx context.Context, userInput string) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer e.running.Store(false)

	runID := core.NewID()
	logger := logging.With(e.logger, "run_id", runID)
	started := time.Now()

	wctx := core.NewWorkflowContext(userInput)
	e.mu.Lock()
	e.runID = runID
	e.records = nil
	e.last = wctx.Clone()
	e.mu.Unlock()

	logger.Info("run started")
	e.bus.Publish(core.NewLogEvent(runID, core.TagWorkflowStart))

	machine := workflow.NewMachine(runID, e.bus)

	err := e.runPipeline(ctx, runID, machine, wctx, logger)

	e.mu.Lock()
	e.last = wctx.Clone()
	e.mu.Unlock()

	if err != nil {
		logging.LogRun(logger, len(machine.History()), time.Since(started), err, "state", machine.State())
		return err
	}

	e.bus.Publish(core.NewLogEvent(runID, core.TagWorkflowComplete))
	logging.LogRun(logger, len(machine.History()), time.Since(started), nil)
	return nil
}

func (e *Engine) runPipeline(
	ctx context.Context,
	runID string,
	machine *workflow.Machine,
	wctx *core.WorkflowContext,
	logger logging.Logger,
) error {
	for _, id := range core.Pipeline {
		entry, ok := e.stages[id]
		if !ok {
			err := fmt.Errorf("%w: %q", core.ErrUnknownStage, id)
			e.bus.Publish(core.NewErrorEvent(runID, core.WorkflowAgent, err.Error(), nil))
			return err
		}

		e.bus.Publish(core.NewLogEvent(runID, core.AgentStartTag(id)))

		if _, err := machine.Step(); err != nil {
			e.bus.Publish(core.NewErrorEvent(runID, core.WorkflowAgent, err.Error(), map[string]any{
				"stage": id,
				"state": machine.State(),
			}))
			return err
		}

		result, err := e.invoke(ctx, runID, entry, wctx, logger)
		if err != nil {
			stageErr := asStageError(id, err)
			e.bus.Publish(core.NewErrorEvent(runID, string(id), stageErr.Message, nil))
			if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnStageError, &CallbackContext{
				RunID: runID,
				Stage: id,
				Err:   stageErr,
			}); cbErr != nil {
				logger.Warn("stage error callback failed", "stage", id, "error", cbErr)
			}
			return stageErr
		}

		if e.config.MergeBack {
			if err := e.mergeBack(ctx, runID, id, result, wctx); err != nil {
				stageErr := core.NewStageError(id, err)
				e.bus.Publish(core.NewErrorEvent(runID, string(id), stageErr.Message, nil))
				return stageErr
			}
		}

		e.bus.Publish(core.NewLogEvent(runID, core.AgentEndTag(id)))
	}
	return nil
}

// invoke calls one stage through the retry and timeout wrappers, recording
// every attempt.
func (e *Engine) invoke(
	ctx context.Context,
	runID string,
	entry stageEntry,
	wctx *core.WorkflowContext,
	logger logging.Logger,
) (core.StageResult, error) {
	id := entry.stage.ID()
	attempt := 0

	op := func(ctx context.Context) (core.StageResult, error) {
		attempt++
		slice := broker.BuildContextSlice(id, wctx)
		rec := core.AgentExecutionRecord{
			Stage:     id,
			Attempt:   attempt,
			StartedAt: time.Now(),
			Input:     slice,
		}

		result, err := e.attempt(ctx, runID, entry, slice, attempt)

		rec.EndedAt = time.Now()
		rec.Output = result.Output
		if err != nil {
			rec.Err = err.Error()
		}
		e.appendRecord(rec)

		logging.LogStageCall(logger, string(id), attempt, rec.Duration(), err)
		return result, err
	}

	return recovery.WithRetries(ctx, e.config.MaxRetries, e.config.RetryBaseDelay, op,
		recovery.OnRetry(func(retry int, err error, delay time.Duration) {
			logger.Warn("retrying stage", "stage", id, "retry", retry, "delay", delay, "error", err)
			e.bus.Publish(core.NewProgressEvent(runID, core.ProgressPayload{
				Stage:   id,
				Attempt: retry + 1,
				Delay:   delay,
				Message: err.Error(),
			}))
		}))
}

func (e *Engine) attempt(
	ctx context.Context,
	runID string,
	entry stageEntry,
	slice core.Slice,
	attempt int,
) (core.StageResult, error) {
	id := entry.stage.ID()
	cbCtx := &CallbackContext{RunID: runID, Stage: id, Attempt: attempt, Slice: slice}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeStage, cbCtx); err != nil {
		return core.StageResult{}, err
	}

	in := core.StageInput{
		RunID: runID,
		Slice: slice,
		Bus:   e.bus,
		Deps:  entry.deps,
	}
	result, err := recovery.WithTimeout(ctx, e.config.StageTimeout, func(ctx context.Context) (core.StageResult, error) {
		return entry.stage.Run(ctx, in)
	})
	if err != nil {
		return result, err
	}
	if !result.OK {
		msg := result.Error
		if msg == "" {
			msg = "stage reported failure"
		}
		return result, &core.StageError{Stage: id, Message: msg}
	}

	cbCtx.Result = &result
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterStage, cbCtx); err != nil {
		return result, err
	}
	return result, nil
}

// mergeBack applies a ContextPatch carried by result to wctx.
func (e *Engine) mergeBack(
	ctx context.Context,
	runID string,
	id core.StageID,
	result core.StageResult,
	wctx *core.WorkflowContext,
) error {
	var patch core.ContextPatch
	switch out := result.Output.(type) {
	case core.ContextPatch:
		patch = out
	case *core.ContextPatch:
		if out == nil {
			return nil
		}
		patch = *out
	default:
		return nil
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnContextChange, &CallbackContext{
		RunID: runID,
		Stage: id,
		Patch: &patch,
	}); err != nil {
		return err
	}

	wctx.Apply(patch)
	e.logger.Debug("context patch applied", "run_id", runID, "stage", id)
	return nil
}

func (e *Engine) appendRecord(rec core.AgentExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
}

// Records returns the execution records of the most recent run, one per
// stage attempt, in execution order.
func (e *Engine) Records() []core.AgentExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]core.AgentExecutionRecord, len(e.records))
	copy(out, e.records)
	return out
}

// LastRunID returns the identifier of the most recent run.
func (e *Engine) LastRunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// Snapshot returns a copy of the run context as it stood at the end of the
// most recent run, or nil before the first run.
func (e *Engine) Snapshot() *core.WorkflowContext {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last.Clone()
}

func asStageError(id core.StageID, err error) *core.StageError {
	var se *core.StageError
	if errors.As(err, &se) && se.Stage == id {
		return se
	}
	return core.NewStageError(id, err)
}
