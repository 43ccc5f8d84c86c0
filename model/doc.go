// Package model defines the provider‑agnostic abstractions and concrete
// helpers for interacting with language models inside Chimera.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so stages remain decoupled from vendor SDKs.
package model
