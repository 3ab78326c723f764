// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webui_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ChatDuration tracks how long chat requests take until they resolve.
	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Chat request duration until resolution",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"model", "outcome"},
	)

	// ChatRequestsTotal tracks resolved chat requests by outcome.
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total chat requests by outcome",
		},
		[]string{"model", "outcome"},
	)

	// ChatInFlight is 1 while a chat request is outstanding.
	ChatInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_requests_in_flight",
			Help: "Number of outstanding chat requests",
		},
	)

	// CodeExecutionDuration tracks sandbox run duration.
	CodeExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "code_execution_duration_seconds",
			Help:    "Sandbox run duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordChat records metrics for a resolved chat request.
func RecordChat(model, outcome string, duration float64) {
	ChatDuration.WithLabelValues(model, outcome).Observe(duration)
	ChatRequestsTotal.WithLabelValues(model, outcome).Inc()
}

// RecordCodeExecution records metrics for a sandbox run.
func RecordCodeExecution(status string, duration float64) {
	CodeExecutionDuration.WithLabelValues(status).Observe(duration)
}
