package provision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provision_stage_duration_seconds",
			Help:    "Wall clock duration of a provisioning stage, clone through commit",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"stage", "outcome"},
	)

	stageOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_stage_outcomes_total",
			Help: "Finished provisioning stages by error kind (empty kind = success)",
		},
		[]string{"stage", "error_kind"},
	)

	pipelinesInFlightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "provision_pipelines_in_flight",
			Help: "Number of provisioning pipelines currently running",
		},
	)

	cleanupFailureCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "provision_cleanup_failures_total",
			Help: "Best-effort purge operations that failed",
		},
	)
)
