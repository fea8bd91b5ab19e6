package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/lockstep/pkg/domain"
)

const namespace = "lockstep"

// Metrics collects counters and histograms for harness runs.
type Metrics struct {
	registry *prometheus.Registry

	tokens     *prometheus.CounterVec
	milestones *prometheus.CounterVec
	failures   *prometheus.CounterVec
	watchdogs  *prometheus.CounterVec
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Protocol lines read from lock-test processes",
			},
			[]string{"role", "token"},
		),
		milestones: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "milestones_total",
				Help:      "Milestones published to the shared state",
			},
			[]string{"milestone"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "driver_failures_total",
				Help:      "Driver failures by role and failure code",
			},
			[]string{"role", "code"},
		),
		watchdogs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watchdog_fires_total",
				Help:      "Deadline timers that fired and killed their process",
			},
			[]string{"role"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed runs by final failure code",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a run",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}
	m.registry.MustRegister(m.tokens, m.milestones, m.failures, m.watchdogs, m.runs, m.duration)
	return m
}

// Registry exposes the underlying registry, e.g. for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Hooks returns lifecycle hooks that record every event.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnToken: func(_ context.Context, e *domain.TokenEvent) {
			m.tokens.WithLabelValues(string(e.Role), tokenLabel(e.Token)).Inc()
		},
		OnMilestone: func(_ context.Context, e *domain.MilestoneEvent) {
			m.milestones.WithLabelValues(string(e.Milestone)).Inc()
		},
		OnFailure: func(_ context.Context, e *domain.FailureEvent) {
			m.failures.WithLabelValues(string(e.Role), string(e.Code)).Inc()
		},
		OnWatchdog: func(_ context.Context, e *domain.EventBase) {
			m.watchdogs.WithLabelValues(string(e.Role)).Inc()
		},
	}
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(r domain.Report) {
	result := r.Failure
	if result == "" {
		result = domain.FailureNone
	}
	m.runs.WithLabelValues(string(result)).Inc()
	m.duration.Observe(r.Duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the current metrics to path for the textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// tokenLabel keeps label cardinality bounded when a process prints garbage.
func tokenLabel(t domain.Token) string {
	if t.Known() {
		return string(t)
	}
	return "unknown"
}
