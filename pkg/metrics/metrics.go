// Package metrics exposes Prometheus instrumentation for phase runs, check
// failures, and drift handling. Metrics are registered with the default
// registry and served by the status server's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics are appropriately global
var (
	phaseRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phasegate_phase_runs_total",
		Help: "Phase validation runs by phase and outcome.",
	}, []string{"phase", "outcome"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phasegate_phase_run_duration_seconds",
		Help:    "Wall-clock duration of phase validation runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"phase"})

	checkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phasegate_check_failures_total",
		Help: "Individual check failures by phase and check name.",
	}, []string{"phase", "check"})

	driftDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phasegate_drift_detected_total",
		Help: "Drift detections by phase.",
	}, []string{"phase"})

	cascadeInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phasegate_cascade_invalidations_total",
		Help: "Locks invalidated by cascade walks.",
	})
)

// RecordPhaseRun records one completed phase validation run.
func RecordPhaseRun(phaseName, outcome string, elapsed time.Duration) {
	phaseRuns.WithLabelValues(phaseName, outcome).Inc()
	phaseDuration.WithLabelValues(phaseName).Observe(elapsed.Seconds())
}

// RecordCheckFailure records one failed check.
func RecordCheckFailure(phaseName, check string) {
	checkFailures.WithLabelValues(phaseName, check).Inc()
}

// RecordDrift records one drifted phase observation.
func RecordDrift(phaseName string) {
	driftDetected.WithLabelValues(phaseName).Inc()
}

// RecordCascade records the size of a cascade invalidation.
func RecordCascade(invalidated int) {
	cascadeInvalidations.Add(float64(invalidated))
}
