package core

import "slices"

// EmptyPlan is the serialized plan document a run starts with.
const EmptyPlan = "{}"

// WorkflowContext is the single mutable state of one pipeline run. It is owned
// exclusively by the engine for the run's lifetime; stages never receive it
// directly, only the Slice the broker derives for them.
type WorkflowContext struct {
	UserInput   string   `json:"user_input"`
	Refined     string   `json:"refined"`
	Assumptions []string `json:"assumptions,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Plan        string   `json:"plan"`
	CurrentStep string   `json:"current_step,omitempty"`
	Artifacts   []string `json:"artifacts"`
}

// NewWorkflowContext initializes the run context from raw user input. The
// refined text defaults to the raw input and the plan to EmptyPlan.
func NewWorkflowContext(userInput string) *WorkflowContext {
	return &WorkflowContext{
		UserInput: userInput,
		Refined:   userInput,
		Plan:      EmptyPlan,
		Artifacts: []string{},
	}
}

// Clone returns a deep copy safe for independent mutation.
func (c *WorkflowContext) Clone() *WorkflowContext {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Assumptions = slices.Clone(c.Assumptions)
	clone.Constraints = slices.Clone(c.Constraints)
	clone.Artifacts = slices.Clone(c.Artifacts)
	return &clone
}

// ContextPatch describes changes a stage proposes for the run context. It is
// only applied when the engine runs with merge-back enabled. Nil fields are
// left untouched; Artifacts are appended.
type ContextPatch struct {
	Refined     *string
	Assumptions []string
	Constraints []string
	Plan        *string
	CurrentStep *string
	Artifacts   []string
}

// Apply merges p into c.
func (c *WorkflowContext) Apply(p ContextPatch) {
	if p.Refined != nil {
		c.Refined = *p.Refined
	}
	if p.Assumptions != nil {
		c.Assumptions = slices.Clone(p.Assumptions)
	}
	if p.Constraints != nil {
		c.Constraints = slices.Clone(p.Constraints)
	}
	if p.Plan != nil {
		c.Plan = *p.Plan
	}
	if p.CurrentStep != nil {
		c.CurrentStep = *p.CurrentStep
	}
	c.Artifacts = append(c.Artifacts, p.Artifacts...)
}
