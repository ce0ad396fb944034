package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentsync"

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	ItemsEnqueued  *prometheus.CounterVec
	ItemsProcessed *prometheus.CounterVec
	ItemDuration   *prometheus.HistogramVec
	QueueItems     *prometheus.GaugeVec
	RunsStarted    *prometheus.CounterVec
	RunsFinished   *prometheus.CounterVec
	RunActive      prometheus.Gauge
	DecodeIssues   prometheus.Counter
}

// New creates and registers every collector on reg, the default registerer when nil
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ItemsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_enqueued_total",
			Help:      "Queue items created, by destination kind",
		}, []string{"kind"}),
		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_processed_total",
			Help:      "Queue items processed, by final status and error kind",
		}, []string{"status", "error_kind"}),
		ItemDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "item_duration_seconds",
			Help:      "Time spent distributing one queue item",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		QueueItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items",
			Help:      "Queue items currently stored, by status",
		}, []string{"status"}),
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "runs_started_total",
			Help:      "Runs started, by trigger",
		}, []string{"trigger"}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "runs_finished_total",
			Help:      "Runs finished, by final state",
		}, []string{"state"}),
		RunActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "active",
			Help:      "1 while a run is in progress",
		}),
		DecodeIssues: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "destination",
			Name:      "decode_issues_total",
			Help:      "Problems repaired or skipped while decoding destination trees",
		}),
	}
}
