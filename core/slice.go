package core

// Slice is the restricted view of the WorkflowContext a stage may read.
// Concrete slice types implement the unexported isSlice marker enabling a
// closed set; stages type-switch on the variant they expect.
type Slice interface{ isSlice() }

// IntakeSlice grants the intake stage the full context.
type IntakeSlice struct {
	Context WorkflowContext
}

func (IntakeSlice) isSlice() {}

// SynthesisSlice is the plan synthesis view. Assumptions and Constraints are
// never nil.
type SynthesisSlice struct {
	Refined     string
	Assumptions []string
	Constraints []string
	Plan        string
}

func (SynthesisSlice) isSlice() {}

// ExecutionSlice is the execution view.
type ExecutionSlice struct {
	CurrentStep string
	Artifacts   []string
}

func (ExecutionSlice) isSlice() {}

// ReviewSlice is the review view.
type ReviewSlice struct {
	Plan      string
	Artifacts []string
}

func (ReviewSlice) isSlice() {}

// EmptySlice is returned for unknown stage identities.
type EmptySlice struct{}

func (EmptySlice) isSlice() {}
