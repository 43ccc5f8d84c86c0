// Package logging provides a minimal logging interface and adapters for Chimera.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, the bus bridge and the reference stages use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - ChimeraLogger, a slog-backed logger with run/stage scoping helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - LogStageCall, LogModelCall and LogRun, the pipeline's standard entries
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng, err := engine.New(stages, func(o *engine.Options) { o.Logger = logger })
//
// Arguments after the message are slog-style key/value pairs.
package logging
