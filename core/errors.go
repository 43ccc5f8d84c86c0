package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStageFailed matches every stage failure surfaced by the engine.
	ErrStageFailed = errors.New("stage failed")
	// ErrTimeout is returned when an operation exceeds its time budget.
	ErrTimeout = errors.New("timeout")
	// ErrIllegalTransition is matched by illegal state machine transitions.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrUnknownStage is returned for stage identities outside the pipeline.
	ErrUnknownStage = errors.New("unknown stage")
)

// StageError reports that a stage failed, either by returning an error or by
// returning a StageResult with OK == false.
type StageError struct {
	Stage   StageID
	Message string
	Err     error
}

// NewStageError builds a StageError from an underlying error.
func NewStageError(stage StageID, err error) *StageError {
	return &StageError{Stage: stage, Message: err.Error(), Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message)
}

// Unwrap exposes the underlying cause (may be nil for explicit failures).
func (e *StageError) Unwrap() error { return e.Err }

// Is reports ErrStageFailed as a match.
func (e *StageError) Is(target error) bool { return target == ErrStageFailed }
