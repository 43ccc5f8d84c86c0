// Package engine implements the orchestration layer of Chimera.
//
// The Engine sequences the four pipeline stages (intake, synthesis,
// execution, review) of a run. It owns the run's WorkflowContext, asks the
// broker for each stage's context slice, invokes the stage through the
// recovery wrappers, advances the workflow state machine and publishes every
// lifecycle signal on the event bus.
//
// # Event Sequence
//
// A successful run publishes exactly:
//
//	log  workflow-start
//	log  agent-start-intake
//	log  state INIT -> PLANNING (start)
//	log  agent-end-intake
//	...  (synthesis, execution, review)
//	log  workflow-complete
//
// Retries add progress events between the start and end tags of the retried
// stage. When a stage exhausts its retries the engine publishes a single
// error event naming the stage and returns; nothing is published for the
// remaining stages.
//
// # Failure Handling
//
// A stage fails when Run returns an error, when it returns a StageResult with
// OK == false, when it panics or when it exceeds Config.StageTimeout. All four
// are retried the same way:
//
//	attempt 0: immediately
//	attempt n: after RetryBaseDelay * 2^(n-1)
//
// The error returned by Engine.Run is a *core.StageError carrying the
// message of the last attempt. Illegal state machine transitions are never
// retried and are reported with agent "WORKFLOW".
//
// # Cooperative Timeouts
//
// A stage that exceeds its budget is abandoned, not cancelled. It keeps
// running with the caller's context and may still write files or save
// artifacts after the engine has moved on to the next attempt or reported
// failure. Stages that must stop should watch their own context.
//
// # Merge-Back
//
// By default stages only read their slices; their outputs are recorded but
// never written back, so later stages observe the initial context. With
// WithMergeBack a stage may return a core.ContextPatch as StageResult.Output;
// the patch is applied before the next slice is built.
//
// # Callbacks
//
// A CallbackManager hooks into stage attempts (BeforeStage, AfterStage),
// final failures (OnStageError) and merge-back patches (OnContextChange).
//
// # Usage
//
//	eng, err := engine.New([]core.Stage{intake, synthesis, execution, review},
//	    func(o *engine.Options) {
//	        o.Bus = b
//	        o.Logger = logger
//	    },
//	)
//	if err != nil {
//	    return err
//	}
//	if err := eng.Run(ctx, "build a hello world cli"); err != nil {
//	    return err
//	}
package engine
