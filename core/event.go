package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of event categories carried by the bus.
type EventType string

const (
	// EventLog carries a string tag (workflow-start, agent-start-<stage>, ...).
	EventLog EventType = "log"
	// EventProgress carries a ProgressPayload.
	EventProgress EventType = "progress"
	// EventAgentStart is available to stages announcing their own start.
	EventAgentStart EventType = "agent-start"
	// EventAgentEnd is available to stages announcing their own completion.
	EventAgentEnd EventType = "agent-end"
	// EventError carries an ErrorPayload.
	EventError EventType = "error"
)

// EventTypes lists every EventType in declaration order.
var EventTypes = []EventType{EventLog, EventProgress, EventAgentStart, EventAgentEnd, EventError}

// Valid reports whether t belongs to the closed set of event types.
func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Log tags published by the engine.
const (
	TagWorkflowStart    = "workflow-start"
	TagWorkflowComplete = "workflow-complete"
)

// WorkflowAgent is the agent identity used in error payloads that are not
// attributable to a single stage.
const WorkflowAgent = "WORKFLOW"

// AgentStartTag returns the log tag announcing that a stage is about to run.
func AgentStartTag(id StageID) string { return "agent-start-" + string(id) }

// AgentEndTag returns the log tag announcing that a stage completed.
func AgentEndTag(id StageID) string { return "agent-end-" + string(id) }

// ErrorPayload is the payload of an EventError event.
type ErrorPayload struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ProgressPayload is the payload of an EventProgress event.
type ProgressPayload struct {
	Stage   StageID       `json:"stage"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay,omitempty"`
	Message string        `json:"message"`
}

// Event is the immutable record published on the bus. After publication it
// must be treated as read-only; Payload shapes depend on Type:
//   - EventLog: string
//   - EventProgress: ProgressPayload
//   - EventError: ErrorPayload
//
// Stages may publish agent-start / agent-end events with payloads of their
// choosing.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent creates an event of the given type stamped with a fresh ID and the
// current UTC time.
func NewEvent(runID string, t EventType, payload any) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Type:      t,
		Payload:   payload,
	}
}

// NewLogEvent creates a log event carrying a string tag.
func NewLogEvent(runID, tag string) Event {
	return NewEvent(runID, EventLog, tag)
}

// NewErrorEvent creates an error event attributed to agent.
func NewErrorEvent(runID, agent, message string, details any) Event {
	return NewEvent(runID, EventError, ErrorPayload{Agent: agent, Message: message, Details: details})
}

// NewProgressEvent creates a progress event for a stage.
func NewProgressEvent(runID string, p ProgressPayload) Event {
	return NewEvent(runID, EventProgress, p)
}

// Tag returns the string payload of a log event, or "" for other events.
func (e Event) Tag() string {
	if e.Type != EventLog {
		return ""
	}
	s, _ := e.Payload.(string)
	return s
}

// ErrorPayload returns the payload of an error event.
func (e Event) ErrorPayload() (ErrorPayload, bool) {
	if e.Type != EventError {
		return ErrorPayload{}, false
	}
	p, ok := e.Payload.(ErrorPayload)
	return p, ok
}

// NewID generates a new unique identifier for events and runs.
func NewID() string { return uuid.NewString() }
