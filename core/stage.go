package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/hupe1980/chimera/logging"
	"github.com/hupe1980/chimera/model"
)

// StageID identifies one of the four pipeline collaborators.
type StageID string

const (
	StageIntake    StageID = "intake"
	StageSynthesis StageID = "synthesis"
	StageExecution StageID = "execution"
	StageReview    StageID = "review"
)

// Pipeline is the fixed stage order of every run.
var Pipeline = []StageID{StageIntake, StageSynthesis, StageExecution, StageReview}

// Valid reports whether id is one of the pipeline stages.
func (id StageID) Valid() bool {
	for _, s := range Pipeline {
		if s == id {
			return true
		}
	}
	return false
}

// Handler receives published events.
type Handler func(Event)

// Publisher is the write side of the event bus.
type Publisher interface {
	Publish(ev Event)
}

// EventBus is the contract stages and the engine use to exchange lifecycle
// signals. See package bus for the implementation.
type EventBus interface {
	Publisher
	Subscribe(t EventType, h Handler) (unsubscribe func())
	History(limit int) []Event
}

// Dependencies are the external collaborators injected into a stage at engine
// construction time. Any field may be nil when a stage does not need it.
type Dependencies struct {
	Model     model.Model
	Workspace billy.Filesystem
	Artifacts ArtifactStore
	Logger    logging.Logger
}

// StageInput is everything a stage call receives.
type StageInput struct {
	RunID string
	Slice Slice
	Bus   EventBus
	Deps  Dependencies
}

// StageResult is the explicit outcome of a stage call. OK == false is handled
// exactly like a returned error.
type StageResult struct {
	OK     bool
	Output any
	Error  string
}

// Succeeded returns a successful result carrying output.
func Succeeded(output any) StageResult { return StageResult{OK: true, Output: output} }

// Failed returns an explicit failure result.
func Failed(format string, args ...any) StageResult {
	return StageResult{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Stage is one pipeline collaborator.
//
// Implementations must:
//   - Only read the Slice variant matching their ID
//   - Respect ctx where they perform I/O; the engine's timeout is cooperative
//     and does not cancel ctx, so a timed-out stage may still finish its work
//   - Be safe to call again after a failed attempt (the engine retries)
type Stage interface {
	ID() StageID
	Run(ctx context.Context, in StageInput) (StageResult, error)
}

// AgentExecutionRecord is the audit trail entry for one stage attempt.
type AgentExecutionRecord struct {
	Stage     StageID   `json:"stage"`
	Attempt   int       `json:"attempt"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Input     Slice     `json:"-"`
	Output    any       `json:"output,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Duration reports how long the attempt took.
func (r AgentExecutionRecord) Duration() time.Duration { return r.EndedAt.Sub(r.StartedAt) }
