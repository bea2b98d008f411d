// Package metrics provides Prometheus instrumentation for the briefing
// pipeline: generation job outcomes, delivery outcomes and API traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all pipeline metrics.
	MetricsNamespace = "newsbrief"
)

// Metrics holds all Prometheus metrics for the briefing pipeline.
type Metrics struct {
	// Generation metrics
	JobsEnqueuedTotal         *prometheus.CounterVec
	JobsCompletedTotal        *prometheus.CounterVec
	GenerationDurationSeconds prometheus.Histogram
	GenerationCostUSD         prometheus.Histogram
	ArticlesSelected          prometheus.Histogram

	// Delivery metrics
	DispatchesTotal         *prometheus.CounterVec
	DeliveriesTotal         *prometheus.CounterVec
	DeliveryDurationSecs    *prometheus.HistogramVec
	DeliveriesInFlight      prometheus.Gauge
	TrackingEventsTotal     *prometheus.CounterVec
	StaleJobsRecoveredTotal prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initGenerationMetrics(factory)
	m.initDeliveryMetrics(factory)

	return m
}

func (m *Metrics) initGenerationMetrics(factory promauto.Factory) {
	m.JobsEnqueuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "generation",
			Name:      "jobs_enqueued_total",
			Help:      "Trigger attempts by outcome (queued, skipped) and source",
		},
		[]string{"outcome", "triggered_by"},
	)

	m.JobsCompletedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "generation",
			Name:      "jobs_completed_total",
			Help:      "Finished generation jobs by outcome (completed, retried, failed, cancelled)",
		},
		[]string{"outcome"},
	)

	m.GenerationDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of successful generation runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	m.GenerationCostUSD = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "generation",
			Name:      "cost_usd",
			Help:      "Estimated USD cost of generation runs",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	m.ArticlesSelected = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "generation",
			Name:      "articles_selected",
			Help:      "Number of articles selected per generation run",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	m.StaleJobsRecoveredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "generation",
			Name:      "stale_jobs_recovered_total",
			Help:      "Running jobs reset to pending after their worker went away",
		},
	)
}

func (m *Metrics) initDeliveryMetrics(factory promauto.Factory) {
	m.DispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "dispatch",
			Name:      "fanouts_total",
			Help:      "Dispatch fan-outs by outcome (created, no_channels, conflict, error)",
		},
		[]string{"outcome"},
	)

	m.DeliveriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Delivery attempts by channel type and outcome (sent, retry, failed)",
		},
		[]string{"channel_type", "outcome"},
	)

	m.DeliveryDurationSecs = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Duration of delivery attempts in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel_type"},
	)

	m.DeliveriesInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "delivery",
			Name:      "in_flight",
			Help:      "Deliveries currently being attempted",
		},
	)

	m.TrackingEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "delivery",
			Name:      "tracking_events_total",
			Help:      "Recorded tracking events by kind (open, click)",
		},
		[]string{"kind"},
	)
}
