// Package metrics provides Prometheus instrumentation for Kestrel.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PredictionsTotal counts scored transactions by scoring mode.
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "predictions_total",
			Help:      "Total predictions produced by scoring mode.",
		},
		[]string{"mode"},
	)

	// HighRiskPredictionsTotal counts predictions over the anomaly
	// threshold.
	HighRiskPredictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "high_risk_predictions_total",
		Help:      "Total predictions with risk_score above the anomaly threshold.",
	})

	// PredictionDuration observes the in-memory scoring latency.
	PredictionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kestrel",
		Name:      "prediction_duration_seconds",
		Help:      "Scoring latency in seconds, excluding persistence.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	// PersistFailuresTotal counts best-effort persistence failures by
	// sink.
	PersistFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "persist_failures_total",
			Help:      "Total persistence failures by sink (store, index, audit).",
		},
		[]string{"sink"},
	)

	// AlertsTotal counts emitted alerts by severity.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "alerts_total",
			Help:      "Total alerts emitted by severity.",
		},
		[]string{"severity"},
	)

	// VendorHistoryCacheHits counts cache outcomes on the history path.
	VendorHistoryCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "vendor_history_cache_total",
			Help:      "Vendor history cache lookups by outcome (hit, miss).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PredictionsTotal,
		HighRiskPredictionsTotal,
		PredictionDuration,
		PersistFailuresTotal,
		AlertsTotal,
		VendorHistoryCacheHits,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePrediction records one scored transaction.
func ObservePrediction(mode string, highRisk bool, elapsed time.Duration) {
	PredictionsTotal.WithLabelValues(mode).Inc()
	if highRisk {
		HighRiskPredictionsTotal.Inc()
	}
	PredictionDuration.Observe(elapsed.Seconds())
}
