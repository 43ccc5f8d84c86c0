// Package core provides the foundational domain types and interfaces shared by
// every Chimera package. It defines:
//
//   - Events (immutable lifecycle records published on the event bus)
//   - WorkflowContext (the single run-scoped mutable state owned by the engine)
//   - Slices (the restricted views of that state handed to each stage)
//   - Stages (the four pipeline collaborators and their input/result contract)
//   - The error taxonomy used across the coordination layer
//
// The package intentionally keeps implementation concerns (bus, broker,
// recovery, state machine, engine) out of scope, exposing small types and
// interfaces so collaborators can be swapped in tests or production.
package core
