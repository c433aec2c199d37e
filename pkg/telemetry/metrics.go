package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for the task loop. The zero-value
// methods are safe no-ops when metrics are disabled.
type Metrics struct {
	config MetricsConfig

	runsCompleted     *prometheus.CounterVec
	iterationsStarted prometheus.Counter
	passesCompleted   *prometheus.CounterVec
	tasksCompleted    *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	haltInvocations   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		iterationsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_started_total",
				Help:      "Total number of iterations started",
			},
		),
		passesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_completed_total",
				Help:      "Total number of passes over the task order",
			},
			[]string{"status"},
		),
		tasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total number of task executions by outcome",
			},
			[]string{"task", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		haltInvocations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "halt_invocations_total",
				Help:      "Total number of halt command invocations",
			},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.iterationsStarted,
		m.passesCompleted,
		m.tasksCompleted,
		m.taskDuration,
		m.haltInvocations,
	)

	return m, nil
}

// RecordRunCompleted records a finished run with its status.
func (m *Metrics) RecordRunCompleted(status string) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
}

// RecordIterationStarted increments the iteration counter.
func (m *Metrics) RecordIterationStarted() {
	if m.iterationsStarted == nil {
		return
	}
	m.iterationsStarted.Inc()
}

// RecordPassCompleted records a finished pass with its status.
func (m *Metrics) RecordPassCompleted(status string) {
	if m.passesCompleted == nil {
		return
	}
	m.passesCompleted.WithLabelValues(status).Inc()
}

// RecordTaskCompleted records one task execution.
func (m *Metrics) RecordTaskCompleted(task, outcome string, duration time.Duration) {
	if m.tasksCompleted == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(task, outcome).Inc()
	m.taskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordHaltInvoked records one halt command invocation.
func (m *Metrics) RecordHaltInvoked() {
	if m.haltInvocations == nil {
		return
	}
	m.haltInvocations.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer starts an HTTP server exposing the metrics endpoint. Server
// errors are logged, never fatal.
func (m *Metrics) StartServer(log zerolog.Logger) {
	if !m.config.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
}
