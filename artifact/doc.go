// Package artifact contains implementations of core.ArtifactStore.
//
// The ArtifactStore interface lives in the core package so stages depend on
// the contract rather than on a backend. This package provides the
// in-memory store; package artifact/billy persists artifacts on any
// go-billy filesystem (in-memory or on disk).
//
// Artifacts are scoped by run identifier. Artifact identifiers are
// slash-separated relative paths such as "cmd/main.go".
package artifact
