package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mock.Mock
}

func (m *mockLogger) Debug(msg string, args ...any) { m.Called(msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.Called(msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.Called(msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.Called(msg) }

func TestCallbackManagerExecutesInOrder(t *testing.T) {
	cm := NewCallbackManager()

	var order []string
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeStage, func(context.Context, *CallbackContext) error {
		order = append(order, "first")
		return nil
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeStage, func(context.Context, *CallbackContext) error {
		order = append(order, "second")
		return errors.New("stop")
	}))
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeStage, func(context.Context, *CallbackContext) error {
		order = append(order, "third")
		return nil
	}))

	cbCtx := &CallbackContext{Stage: core.StageIntake}
	err := cm.ExecuteCallbacks(context.Background(), CallbackBeforeStage, cbCtx)

	assert.EqualError(t, err, "before_stage callback: stop")
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, CallbackBeforeStage, cbCtx.CallbackType)
	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackAfterStage, cbCtx))
}

func TestBeforeStageErrorFailsAttempt(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeStage, func(_ context.Context, c *CallbackContext) error {
		if c.Stage == core.StageReview && c.Attempt < 3 {
			return errors.New("not ready")
		}
		return nil
	}))

	review := testutil.Succeed(core.StageReview, nil)
	eng, rec := newEngine(t, []core.Stage{review}, func(o *Options) { o.Callbacks = cm })

	require.NoError(t, eng.Run(context.Background(), "x"))
	assert.Equal(t, 1, review.Calls())
	assert.Len(t, rec.OfType(core.EventProgress), 2)
}

func TestAfterStageSeesResult(t *testing.T) {
	cm := NewCallbackManager()
	var outputs []any
	cm.RegisterCallback(NewFunctionCallback(CallbackAfterStage, func(_ context.Context, c *CallbackContext) error {
		outputs = append(outputs, c.Result.Output)
		return nil
	}))

	intake := testutil.Succeed(core.StageIntake, "refined")
	eng, _ := newEngine(t, []core.Stage{intake}, func(o *Options) { o.Callbacks = cm })

	require.NoError(t, eng.Run(context.Background(), "x"))
	assert.Equal(t, []any{"refined", nil, nil, nil}, outputs)
}

func TestOnStageErrorRunsOnce(t *testing.T) {
	cm := NewCallbackManager()
	var got []error
	cm.RegisterCallback(NewFunctionCallback(CallbackOnStageError, func(_ context.Context, c *CallbackContext) error {
		got = append(got, c.Err)
		return errors.New("ignored")
	}))

	intake := testutil.NewStageFunc(core.StageIntake, func(context.Context, core.StageInput) (core.StageResult, error) {
		return core.StageResult{}, errors.New("boom")
	})
	logger := &mockLogger{}
	logger.On("Debug", mock.Anything).Maybe()
	logger.On("Info", mock.Anything).Maybe()
	logger.On("Warn", mock.Anything).Maybe()
	logger.On("Error", mock.Anything).Maybe()

	eng, _ := newEngine(t, []core.Stage{intake}, func(o *Options) {
		o.Callbacks = cm
		o.Logger = logger
	})

	err := eng.Run(context.Background(), "x")
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], core.ErrStageFailed)
	logger.AssertCalled(t, "Warn", "stage error callback failed")
	logger.AssertCalled(t, "Warn", "stage attempt failed")
	logger.AssertCalled(t, "Error", "run failed")
	logger.AssertNotCalled(t, "Info", "run completed")
}

func TestPatchValidationRejectsMergeBack(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewPatchValidationCallback(func(stage core.StageID, p core.ContextPatch) error {
		if p.Plan != nil && *p.Plan == "" {
			return errors.New("empty plan")
		}
		return nil
	}))

	empty := ""
	synthesis := testutil.Succeed(core.StageSynthesis, core.ContextPatch{Plan: &empty})
	execution := testutil.Succeed(core.StageExecution, nil)

	eng, rec := newEngine(t, []core.Stage{synthesis, execution}, WithMergeBack(), func(o *Options) { o.Callbacks = cm })

	err := eng.Run(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStageFailed)
	assert.Equal(t, 1, synthesis.Calls())
	assert.Equal(t, 0, execution.Calls())

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "synthesis", errs[0].Agent)
	assert.Contains(t, errs[0].Message, "empty plan")
	assert.Equal(t, core.EmptyPlan, eng.Snapshot().Plan)
}

func TestLoggingCallback(t *testing.T) {
	logger := &mockLogger{}
	logger.On("Debug", "before_stage").Times(4)

	cm := NewCallbackManager()
	cm.RegisterCallback(NewLoggingCallback(CallbackBeforeStage, logger))

	eng, _ := newEngine(t, nil, func(o *Options) { o.Callbacks = cm })
	require.NoError(t, eng.Run(context.Background(), "x"))

	logger.AssertExpectations(t)
}

func TestRunLogsStageAttemptsAndOutcome(t *testing.T) {
	logger := &mockLogger{}
	logger.On("Debug", "stage attempt completed").Times(4)
	logger.On("Info", "run started").Once()
	logger.On("Info", "run completed").Once()

	eng, _ := newEngine(t, nil, func(o *Options) { o.Logger = logger })
	require.NoError(t, eng.Run(context.Background(), "x"))

	logger.AssertExpectations(t)
}
