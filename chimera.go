// Package chimera provides a high-level façade over the pipeline engine.
// Most applications interact with this package by:
//  1. Creating a Chimera via New() (optionally overriding the default model,
//     workspace, artifact store and logger)
//  2. Running a request through the four stages (Run or RunSync)
//  3. Inspecting the bus history, execution records and artifacts
//
// Defaults are safe for local development and testing: an in-memory event
// bus, an in-memory billy workspace, an in-memory artifact store and the
// reference stages from package stage. Without a model the stages still run
// but intake passes the request through and synthesis fails with
// stage.ErrNoModel.
package chimera

import (
	"context"
	"errors"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"github.com/hupe1980/chimera/artifact"
	"github.com/hupe1980/chimera/bus"
	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/engine"
	"github.com/hupe1980/chimera/logging"
	"github.com/hupe1980/chimera/model"
	"github.com/hupe1980/chimera/stage"
)

// Options configures the Chimera instance.
type Options struct {
	// Engine configuration (timeouts, retries, merge-back)
	EngineConfig engine.Config

	// HistoryCap bounds the default bus history. Ignored when Bus is set.
	HistoryCap int

	// Bus receives every lifecycle event (defaults to bus.New()).
	Bus core.EventBus

	// Model is injected into every stage. Optional.
	Model model.Model

	// Workspace is the filesystem stages write to (defaults to memfs).
	Workspace billy.Filesystem

	// Artifacts records generated files (defaults to an in-memory store).
	Artifacts core.ArtifactStore

	// Stages replaces the reference stages from package stage.
	Stages []core.Stage

	// StageOptions configure the reference stages. Ignored when Stages is set.
	StageOptions []func(o *stage.Options)

	// Callbacks are executed at stage lifecycle points. Optional.
	Callbacks *engine.CallbackManager

	// LogEvents forwards every bus event to Logger.
	LogEvents bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Chimera is the high-level façade aggregating the engine and its collaborators.
type Chimera struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Chimera instance with optional overrides.
func New(optFns ...func(o *Options)) (*Chimera, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		HistoryCap:   bus.DefaultHistoryCap,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Bus == nil {
		opts.Bus = bus.New(func(o *bus.Options) { o.HistoryCap = opts.HistoryCap })
	}
	if opts.Workspace == nil {
		opts.Workspace = memfs.New()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewInMemoryStore()
	}
	if opts.Stages == nil {
		opts.Stages = stage.Pipeline(opts.StageOptions...)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	eng, err := engine.New(opts.Stages, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Bus = opts.Bus
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
		o.Dependencies = core.Dependencies{
			Model:     opts.Model,
			Workspace: opts.Workspace,
			Artifacts: opts.Artifacts,
			Logger:    opts.Logger,
		}
	})
	if err != nil {
		return nil, err
	}

	if opts.LogEvents {
		bus.LogEvents(opts.Bus, opts.Logger)
	}

	return &Chimera{opts: opts, engine: eng}, nil
}

// Run executes one pipeline run for request and returns its run id. On
// failure the run id is still returned so the caller can inspect records and
// artifacts of the aborted run. A call rejected with engine.ErrRunInProgress
// never started a run and returns an empty id.
func (c *Chimera) Run(ctx context.Context, request string) (string, error) {
	err := c.engine.Run(ctx, request)
	if errors.Is(err, engine.ErrRunInProgress) {
		return "", err
	}
	return c.engine.LastRunID(), err
}

// RunSync runs request like Run and also returns every event published
// while the run was in progress.
func (c *Chimera) RunSync(ctx context.Context, request string) (string, []core.Event, error) {
	var (
		mu     sync.Mutex
		events []core.Event
	)
	collect := func(ev core.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	unsubs := make([]func(), 0, len(core.EventTypes))
	for _, t := range core.EventTypes {
		unsubs = append(unsubs, c.opts.Bus.Subscribe(t, collect))
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	runID, err := c.Run(ctx, request)

	mu.Lock()
	defer mu.Unlock()
	return runID, events, err
}

// Engine returns the underlying engine.
func (c *Chimera) Engine() *engine.Engine { return c.engine }

// Bus returns the event bus.
func (c *Chimera) Bus() core.EventBus { return c.opts.Bus }

// Workspace returns the filesystem stages write to.
func (c *Chimera) Workspace() billy.Filesystem { return c.opts.Workspace }

// Artifacts returns the artifact store.
func (c *Chimera) Artifacts() core.ArtifactStore { return c.opts.Artifacts }

// Records returns the execution records of the most recent run.
func (c *Chimera) Records() []core.AgentExecutionRecord { return c.engine.Records() }
