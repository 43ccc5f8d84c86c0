// Package stage provides the reference implementations of the four pipeline
// collaborators.
//
//   - Intake asks the model to refine the raw request and list assumptions
//     and constraints.
//   - Synthesis asks the model for a JSON Plan and persists it to the
//     workspace as plan.json.
//   - Execution loads the plan from the workspace, writes every file step
//     through the workspace filesystem and records each file in the
//     artifact store.
//   - Review checks that the plan decodes and every expected file exists.
//
// Every stage returns a core.ContextPatch as its output, so the engine can
// merge results back into the run context when merge-back is enabled. The
// stages do not rely on it: the plan travels through the workspace.
//
// Stages only read the core.Slice variant matching their identity and get
// their collaborators from core.Dependencies.
package stage
