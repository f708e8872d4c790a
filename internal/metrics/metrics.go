// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseSeconds is a histogram of per-phase evaluator latencies,
	// labelled by the phase name (e.g. "onnx:transform_input",
	// "onnx:net").
	PhaseSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluator_phase_seconds",
			Help:    "Histogram of evaluator phase latency (seconds), labelled by phase.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"phase"},
	)

	// EvaluateBatchSize is a histogram of active batch sizes.
	EvaluateBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluator_batch_size",
			Help:    "Histogram of batch sizes passed to Evaluate.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	// EvaluateLatencySeconds is a histogram of whole Evaluate calls as
	// seen by the driver.
	EvaluateLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluator_evaluate_seconds",
			Help:    "Histogram of end-to-end Evaluate latency (seconds).",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// HealthStatus is a gauge indicating the health status of the daemon
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordPhase records one timed evaluator phase
func RecordPhase(phase string, seconds float64) {
	PhaseSeconds.WithLabelValues(phase).Observe(seconds)
}

// RecordBatch records the batch size for an Evaluate call
func RecordBatch(size int) {
	EvaluateBatchSize.Observe(float64(size))
}

// RecordEvaluateLatency records the end-to-end latency of an Evaluate call
func RecordEvaluateLatency(seconds float64) {
	EvaluateLatencySeconds.Observe(seconds)
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
