// Package metrics exposes pipeline activity as Prometheus metrics. The
// Collector is driven entirely by bus events, so it works with any engine
// or stage that publishes on the bus.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/chimera/bus"
	"github.com/hupe1980/chimera/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label of the runs counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Options configures a Collector.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "chimera".
	Namespace string

	// Buckets are the stage duration histogram buckets in seconds.
	// Defaults to prometheus.DefBuckets.
	Buckets []float64
}

// Collector counts events, stage failures and runs and measures stage
// durations from the agent-start / agent-end log tags.
//
// Error events only mark a run as failing. A run that still reaches
// workflow-complete counts as a success and its errors are dropped. A failing
// run is settled exactly once, when the next run starts on the bus or when
// Flush is called, and then adds one failure per distinct erroring agent.
type Collector struct {
	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
	pending map[string]map[string]struct{} // run id -> erroring agents
}

var _ prometheus.Collector = (*Collector)(nil)

// New creates an unregistered Collector.
func New(optFns ...func(o *Options)) *Collector {
	opts := Options{Namespace: "chimera", Buckets: prometheus.DefBuckets}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "events_total",
			Help:      "Events published on the bus by type.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "stage_failures_total",
			Help:      "Stages that failed after exhausting their retries.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of successful stages including retries.",
			Buckets:   opts.Buckets,
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"outcome"}),
		started: make(map[string]time.Time),
		pending: make(map[string]map[string]struct{}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.events.Describe(ch)
	c.failures.Describe(ch)
	c.duration.Describe(ch)
	c.runs.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.events.Collect(ch)
	c.failures.Collect(ch)
	c.duration.Collect(ch)
	c.runs.Collect(ch)
}

// Attach subscribes the collector to every event type on s. The returned
// function detaches it.
func (c *Collector) Attach(s bus.Subscriber) func() {
	unsubs := make([]func(), 0, len(core.EventTypes))
	for _, t := range core.EventTypes {
		unsubs = append(unsubs, s.Subscribe(t, c.Observe))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Observe records a single event.
func (c *Collector) Observe(ev core.Event) {
	c.events.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case core.EventError:
		p, _ := ev.ErrorPayload()
		c.mu.Lock()
		agents, ok := c.pending[ev.RunID]
		if !ok {
			agents = make(map[string]struct{})
			c.pending[ev.RunID] = agents
		}
		agents[p.Agent] = struct{}{}
		c.mu.Unlock()
	case core.EventLog:
		c.observeTag(ev)
	}
}

func (c *Collector) observeTag(ev core.Event) {
	tag := ev.Tag()
	if stage, ok := strings.CutPrefix(tag, "agent-start-"); ok {
		c.mu.Lock()
		c.started[key(ev.RunID, stage)] = ev.Timestamp
		c.mu.Unlock()
		return
	}
	if stage, ok := strings.CutPrefix(tag, "agent-end-"); ok {
		c.mu.Lock()
		k := key(ev.RunID, stage)
		start, found := c.started[k]
		delete(c.started, k)
		c.mu.Unlock()
		if found {
			c.duration.WithLabelValues(stage).Observe(ev.Timestamp.Sub(start).Seconds())
		}
		return
	}
	switch tag {
	case core.TagWorkflowStart:
		c.settle(func(runID string) bool { return runID != ev.RunID })
	case core.TagWorkflowComplete:
		c.mu.Lock()
		delete(c.pending, ev.RunID)
		c.forget(ev.RunID)
		c.mu.Unlock()
		c.runs.WithLabelValues(OutcomeSuccess).Inc()
	}
}

// Flush settles every run that published an error but never completed.
// Call it once the last run on the bus has returned.
func (c *Collector) Flush() {
	c.settle(func(string) bool { return true })
}

func (c *Collector) settle(match func(runID string) bool) {
	var agents []string
	failed := 0

	c.mu.Lock()
	for runID, set := range c.pending {
		if !match(runID) {
			continue
		}
		for agent := range set {
			agents = append(agents, agent)
		}
		failed++
		delete(c.pending, runID)
		c.forget(runID)
	}
	c.mu.Unlock()

	for _, agent := range agents {
		c.failures.WithLabelValues(agent).Inc()
	}
	if failed > 0 {
		c.runs.WithLabelValues(OutcomeFailure).Add(float64(failed))
	}
}

// forget drops the stage start times of runID. c.mu must be held.
func (c *Collector) forget(runID string) {
	prefix := runID + "/"
	for k := range c.started {
		if strings.HasPrefix(k, prefix) {
			delete(c.started, k)
		}
	}
}

func key(runID, stage string) string { return runID + "/" + stage }
