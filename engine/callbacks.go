package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/logging"
)

// CallbackType defines the lifecycle points of a run where callbacks can be
// executed.
//
// Callbacks hook into the engine's execution pipeline without modifying the
// stages themselves. They run synchronously on the run goroutine.
//
// Available callback types:
//   - BeforeStage/AfterStage: around every stage attempt
//   - OnStageError: once, when a stage has exhausted its retries
//   - OnContextChange: before a merge-back patch is applied to the run context
type CallbackType string

const (
	// CallbackBeforeStage is triggered before each stage attempt. Returning an
	// error fails the attempt, which is then retried like any stage failure.
	CallbackBeforeStage CallbackType = "before_stage"

	// CallbackAfterStage is triggered after a successful stage attempt.
	// Returning an error turns the attempt into a failure.
	CallbackAfterStage CallbackType = "after_stage"

	// CallbackOnStageError is triggered when a stage fails for good. Errors
	// returned by these callbacks are logged and otherwise ignored.
	CallbackOnStageError CallbackType = "on_stage_error"

	// CallbackOnContextChange is triggered before a merge-back patch is
	// applied. Returning an error aborts the run without retrying the stage.
	CallbackOnContextChange CallbackType = "on_context_change"
)

// CallbackContext carries the data available to a callback. Fields that do
// not apply to the callback type are zero.
type CallbackContext struct {
	// RunID identifies the pipeline run.
	RunID string

	// Stage is the stage being executed.
	Stage core.StageID

	// Attempt is the 1-based attempt number (BeforeStage, AfterStage).
	Attempt int

	// Slice is the context slice handed to the stage.
	Slice core.Slice

	// Result is the stage result (AfterStage).
	Result *core.StageResult

	// Patch is the proposed context change (OnContextChange).
	Patch *core.ContextPatch

	// Err is the final stage error (OnStageError).
	Err error

	// CallbackType identifies the lifecycle point.
	CallbackType CallbackType
}

// Callback is a hook executed at a specific lifecycle point.
type Callback interface {
	// Type returns the lifecycle point this callback is registered for.
	Type() CallbackType

	// Execute runs the callback.
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback adapts a plain function into a Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback of the given type backed by fn.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, cbCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager keeps callbacks grouped by type and executes them in
// registration order.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds callback to the manager.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType and stops
// at the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	cbCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	cbCtx.CallbackType = callbackType
	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback writes a debug line for every invocation.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a callback that logs the lifecycle point.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logging.OrNoOp(logger)}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	args := []any{"run_id", cbCtx.RunID, "stage", cbCtx.Stage, "attempt", cbCtx.Attempt}
	if cbCtx.Err != nil {
		args = append(args, "error", cbCtx.Err)
	}
	c.logger.Debug(string(c.callbackType), args...)
	return nil
}

// PatchValidationCallback vets merge-back patches before they touch the run
// context.
type PatchValidationCallback struct {
	validator func(stage core.StageID, patch core.ContextPatch) error
}

// NewPatchValidationCallback creates an OnContextChange callback backed by
// validator.
func NewPatchValidationCallback(validator func(stage core.StageID, patch core.ContextPatch) error) *PatchValidationCallback {
	return &PatchValidationCallback{validator: validator}
}

// Type implements Callback.
func (c *PatchValidationCallback) Type() CallbackType { return CallbackOnContextChange }

// Execute implements Callback.
func (c *PatchValidationCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	if c.validator == nil || cbCtx.Patch == nil {
		return nil
	}
	return c.validator(cbCtx.Stage, *cbCtx.Patch)
}
