package chimera

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chimera/artifact/billyfs"
	"github.com/hupe1980/chimera/bus"
	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/engine"
	"github.com/hupe1980/chimera/internal/testutil"
	"github.com/hupe1980/chimera/stage"
)

func TestNewDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	assert.NotNil(t, c.Bus())
	assert.NotNil(t, c.Workspace())
	assert.NotNil(t, c.Artifacts())
	assert.NotNil(t, c.Engine())
}

func TestRunWithDemoModel(t *testing.T) {
	ws := memfs.New()
	store := billyfs.New(ws, func(o *billyfs.Options) { o.Root = ".chimera/artifacts" })

	c, err := New(func(o *Options) {
		o.Model = stage.NewDemoModel()
		o.Workspace = ws
		o.Artifacts = store
	})
	require.NoError(t, err)

	runID, events, err := c.RunSync(context.Background(), "a tiny cli")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NotEmpty(t, events)
	assert.Equal(t, core.TagWorkflowStart, events[0].Tag())
	assert.Equal(t, core.TagWorkflowComplete, events[len(events)-1].Tag())
	for _, ev := range events {
		assert.Equal(t, runID, ev.RunID)
	}

	ids, err := c.Artifacts().List(runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"NOTES.md", "README.md"}, ids)

	data, err := util.ReadFile(ws, ".chimera/artifacts/"+runID+"/README.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "demo model")

	assert.Len(t, c.Records(), 4)
}

func TestRunWithoutModelFailsAtSynthesis(t *testing.T) {
	rec := testutil.NewRecorder()
	b := bus.New()
	b.SubscribeAll(rec.Handle)

	c, err := New(func(o *Options) {
		o.Bus = b
		o.EngineConfig.MaxRetries = 0
	})
	require.NoError(t, err)

	runID, err := c.Run(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStageFailed))
	assert.NotEmpty(t, runID)

	errs := rec.Errors()
	require.Len(t, errs, 1)
	p := errs[0]
	assert.Equal(t, string(core.StageSynthesis), p.Agent)
	assert.Contains(t, p.Message, stage.ErrNoModel.Error())
	assert.NotContains(t, rec.Tags(), core.TagWorkflowComplete)
}

func TestCustomStages(t *testing.T) {
	stages := testutil.Pipeline()

	c, err := New(func(o *Options) { o.Stages = stages })
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "hello")
	require.NoError(t, err)
	for _, s := range stages {
		assert.Equal(t, 1, s.(*testutil.StageFunc).Calls())
	}
}

func TestNewRejectsIncompletePipeline(t *testing.T) {
	_, err := New(func(o *Options) { o.Stages = testutil.Pipeline()[:3] })
	assert.ErrorIs(t, err, core.ErrUnknownStage)
}

func TestRunSyncUnsubscribes(t *testing.T) {
	b := bus.New()
	c, err := New(func(o *Options) {
		o.Bus = b
		o.Stages = testutil.Pipeline()
	})
	require.NoError(t, err)

	_, events, err := c.RunSync(context.Background(), "hello")
	require.NoError(t, err)
	n := len(events)

	b.Publish(core.NewLogEvent("other", "late"))
	assert.Len(t, events, n)
}

func TestRunRejectedWhileBusyReturnsNoRunID(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	stages := testutil.Pipeline()
	stages[0] = testutil.NewStageFunc(core.StageIntake, func(context.Context, core.StageInput) (core.StageResult, error) {
		close(entered)
		<-release
		return core.Succeeded(nil), nil
	})

	c, err := New(func(o *Options) { o.Stages = stages })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), "first")
		done <- err
	}()
	<-entered

	runID, err := c.Run(context.Background(), "second")
	assert.ErrorIs(t, err, engine.ErrRunInProgress)
	assert.Empty(t, runID)

	close(release)
	require.NoError(t, <-done)
	assert.NotEmpty(t, c.Engine().LastRunID())
}
