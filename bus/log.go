package bus

import (
	"github.com/hupe1980/chimera/core"
	"github.com/hupe1980/chimera/logging"
)

// Subscriber is the subset of Bus needed to attach observers.
type Subscriber interface {
	Subscribe(t core.EventType, h core.Handler) func()
}

// LogEvents forwards every event published on s to logger. Error events are
// logged at error level, progress events at warn level (they announce retries),
// everything else at debug level. The returned function detaches the logger.
func LogEvents(s Subscriber, logger logging.Logger) func() {
	logger = logging.With(logger, "component", "bus")

	unsubs := make([]func(), 0, len(core.EventTypes))
	for _, t := range core.EventTypes {
		unsubs = append(unsubs, s.Subscribe(t, func(ev core.Event) {
			logEvent(logger, ev)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func logEvent(logger logging.Logger, ev core.Event) {
	switch ev.Type {
	case core.EventError:
		p, _ := ev.ErrorPayload()
		logger.Error("pipeline error", "run_id", ev.RunID, "agent", p.Agent, "message", p.Message)
	case core.EventProgress:
		p, _ := ev.Payload.(core.ProgressPayload)
		logger.Warn("stage retry scheduled",
			"run_id", ev.RunID, "stage", p.Stage, "attempt", p.Attempt, "delay", p.Delay, "message", p.Message)
	case core.EventLog:
		logger.Debug("event", "run_id", ev.RunID, "tag", ev.Tag())
	default:
		logger.Debug("event", "run_id", ev.RunID, "type", string(ev.Type), "payload", ev.Payload)
	}
}
