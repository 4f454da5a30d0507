package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for step metrics.
const (
	OutcomeBound   = "bound"
	OutcomeSkipped = "skipped"
	StatusOK       = "ok"
	StatusError    = "error"
)

// MetricsCollector holds all Prometheus metrics for gitcreds.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Selection metrics.
	SelectionsTotal          *prometheus.CounterVec // outcome: bound|skipped
	AmbiguousSelectionsTotal prometheus.Counter

	// Secret materialization metrics.
	MaterializationsTotal *prometheus.CounterVec // status: ok|error

	// Teardown metrics.
	TeardownsTotal *prometheus.CounterVec // status: ok|error

	// Build step metrics.
	StepSetupDuration prometheus.Histogram
	ActiveSessions    prometheus.Gauge

	// Scratch janitor metrics.
	ScratchFilesSweptTotal prometheus.Counter

	// HTTP listing API metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		SelectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitcreds",
			Subsystem: "step",
			Name:      "selections_total",
			Help:      "Total credential selections by outcome.",
		}, []string{"outcome"}),

		AmbiguousSelectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gitcreds",
			Subsystem: "step",
			Name:      "ambiguous_selections_total",
			Help:      "Selections where more than one candidate was eligible.",
		}),

		MaterializationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitcreds",
			Subsystem: "step",
			Name:      "materializations_total",
			Help:      "Total secret materializations by status.",
		}, []string{"status"}),

		TeardownsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitcreds",
			Subsystem: "step",
			Name:      "teardowns_total",
			Help:      "Total artifact teardowns by status.",
		}, []string{"status"}),

		StepSetupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gitcreds",
			Subsystem: "step",
			Name:      "setup_duration_seconds",
			Help:      "Build-step credential setup duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gitcreds",
			Name:      "active_sessions",
			Help:      "Number of build steps currently holding secret artifacts.",
		}),

		ScratchFilesSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gitcreds",
			Subsystem: "scratch",
			Name:      "files_swept_total",
			Help:      "Orphaned scratch files removed by the janitor.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitcreds",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gitcreds",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.SelectionsTotal,
		m.AmbiguousSelectionsTotal,
		m.MaterializationsTotal,
		m.TeardownsTotal,
		m.StepSetupDuration,
		m.ActiveSessions,
		m.ScratchFilesSweptTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
