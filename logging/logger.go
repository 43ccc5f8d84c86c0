package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface for Chimera.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// ChimeraLogger wraps slog.Logger adding run/stage scoping helpers and
// pipeline specific logging helpers. It is cheap to copy via With* methods.
type ChimeraLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	runID     string
	stage     string
}

// LoggerConfig configures construction of a ChimeraLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	RunID       string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration writing to stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr, CustomAttrs: map[string]any{}}
}

// NewLogger builds a ChimeraLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ChimeraLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	l := &ChimeraLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component, runID: cfg.RunID}
	for k, v := range cfg.CustomAttrs {
		l.context[k] = v
	}
	return l
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *ChimeraLogger) clone() *ChimeraLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *ChimeraLogger) WithContext(key string, value any) *ChimeraLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (engine, bus, stage, ...).
func (l *ChimeraLogger) WithComponent(c string) *ChimeraLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithRun attaches a run identifier.
func (l *ChimeraLogger) WithRun(runID string) *ChimeraLogger {
	nl := l.clone()
	nl.runID = runID
	return nl
}

// WithStage attaches a stage identity.
func (l *ChimeraLogger) WithStage(stage string) *ChimeraLogger {
	nl := l.clone()
	nl.stage = stage
	return nl
}

func (l *ChimeraLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	if l.stage != "" {
		attrs = append(attrs, slog.String("stage", l.stage))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *ChimeraLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *ChimeraLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *ChimeraLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *ChimeraLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *ChimeraLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new ChimeraLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ChimeraLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// With returns a logger that attaches args to every entry. ChimeraLogger and
// SlogAdapter keep their native scoping; other loggers are wrapped.
func With(l Logger, args ...any) Logger {
	l = OrNoOp(l)
	if len(args) == 0 {
		return l
	}
	switch v := l.(type) {
	case NoOpLogger:
		return v
	case *SlogAdapter:
		return &SlogAdapter{Logger: v.Logger.With(args...)}
	case *ChimeraLogger:
		nl := v
		for i := 0; i+1 < len(args); i += 2 {
			key, ok := args[i].(string)
			if !ok {
				continue
			}
			switch key {
			case "component":
				nl = nl.WithComponent(fmt.Sprint(args[i+1]))
			case "run_id":
				nl = nl.WithRun(fmt.Sprint(args[i+1]))
			case "stage":
				nl = nl.WithStage(fmt.Sprint(args[i+1]))
			default:
				nl = nl.WithContext(key, args[i+1])
			}
		}
		return nl
	default:
		return &scoped{Logger: l, args: args}
	}
}

type scoped struct {
	Logger
	args []any
}

func (s *scoped) Debug(msg string, args ...any) { s.Logger.Debug(msg, slices.Concat(s.args, args)...) }
func (s *scoped) Info(msg string, args ...any)  { s.Logger.Info(msg, slices.Concat(s.args, args)...) }
func (s *scoped) Warn(msg string, args ...any)  { s.Logger.Warn(msg, slices.Concat(s.args, args)...) }
func (s *scoped) Error(msg string, args ...any) { s.Logger.Error(msg, slices.Concat(s.args, args)...) }

// LogStageCall records the outcome of a single stage attempt. Failed attempts
// are logged at warn level since a retry may still follow.
func LogStageCall(l Logger, stage string, attempt int, dur time.Duration, err error) {
	args := []any{"stage", stage, "attempt", attempt, "duration", dur, "success", err == nil}
	if err != nil {
		OrNoOp(l).Warn("stage attempt failed", append(args, "error", err.Error())...)
		return
	}
	OrNoOp(l).Debug("stage attempt completed", args...)
}

// LogModelCall records model call latency, token usage and success.
func LogModelCall(l Logger, model, provider string, tokens int, dur time.Duration, err error) {
	args := []any{"model", model, "provider", provider, "token_count", tokens, "duration", dur, "success", err == nil}
	if err != nil {
		OrNoOp(l).Warn("model call failed", append(args, "error", err.Error())...)
		return
	}
	OrNoOp(l).Debug("model call completed", args...)
}

// LogRun records the outcome of a pipeline run. extra is appended to the
// entry as key/value pairs.
func LogRun(l Logger, stages int, dur time.Duration, err error, extra ...any) {
	args := append([]any{"stage_count", stages, "duration", dur, "success", err == nil}, extra...)
	if err != nil {
		OrNoOp(l).Error("run failed", append(args, "error", err.Error())...)
		return
	}
	OrNoOp(l).Info("run completed", args...)
}
