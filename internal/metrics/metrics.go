// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// RuleEvalMS observes the duration of one full rules engine cycle.
	RuleEvalMS prometheus.Histogram

	// MLInferenceMS observes the latency of one batch predict call.
	MLInferenceMS prometheus.Histogram

	// SignalsTotal counts emitted signals by rule type and source.
	SignalsTotal *prometheus.CounterVec

	// NotifyFailuresTotal counts notification sends that did not go out.
	NotifyFailuresTotal prometheus.Counter

	// IngestLatencyMS observes the duration of one poll cycle per source.
	IngestLatencyMS *prometheus.HistogramVec

	// IngestLastTickTS records the Unix time of the newest stored tick per source.
	IngestLastTickTS *prometheus.GaugeVec

	// OrderIntentsTotal counts intent transitions by status.
	OrderIntentsTotal *prometheus.CounterVec
}

// New creates a Metrics with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RuleEvalMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rule_eval_ms",
			Help:    "Duration of one rules engine cycle in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		MLInferenceMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_inference_ms",
			Help:    "Latency of one batch ML predict call in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		SignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_total",
			Help: "Emitted signals by rule type and source.",
		}, []string{"rule", "source"}),
		NotifyFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_failures_total",
			Help: "Notification sends that failed or were suppressed.",
		}),
		IngestLatencyMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_latency_ms",
			Help:    "Duration of one ingest poll cycle in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"source"}),
		IngestLastTickTS: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingest_last_tick_ts",
			Help: "Unix timestamp of the newest stored tick.",
		}, []string{"source"}),
		OrderIntentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "order_intents_total",
			Help: "Order intent transitions by status.",
		}, []string{"status"}),
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
