package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/chimera/core"
	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s:%s", level, msg))
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func TestLogEvents(t *testing.T) {
	b := New()
	logger := &captureLogger{}

	detach := LogEvents(b, logger)
	b.Publish(core.NewLogEvent("run", "workflow-start"))
	b.Publish(core.NewProgressEvent("run", core.ProgressPayload{Stage: core.StageExecution, Attempt: 1}))
	b.Publish(core.NewErrorEvent("run", "execution", "boom", nil))
	b.Publish(core.NewEvent("run", core.EventAgentStart, "custom"))
	detach()
	b.Publish(core.NewLogEvent("run", "ignored"))

	assert.Equal(t, []string{
		"debug:event",
		"warn:stage retry scheduled",
		"error:pipeline error",
		"debug:event",
	}, logger.entries)
}

func TestLogEventsNilLogger(t *testing.T) {
	b := New()
	detach := LogEvents(b, nil)
	defer detach()

	assert.NotPanics(t, func() { b.Publish(core.NewLogEvent("run", "x")) })
}
