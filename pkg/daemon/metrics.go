package daemon

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/rollout/pkg/metrics"
)

var (
	// Syncs that plan nothing finish in well under a second; syncs
	// that execute a rollout are dominated by health-gate waits.
	syncDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "rollout",
		Subsystem: "daemon",
		Name:      "sync_duration_seconds",
		Help:      "Duration of one reconciliation tick, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{fluxmetrics.LabelSuccess})

	rolloutDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "rollout",
		Subsystem: "daemon",
		Name:      "rollout_duration_seconds",
		Help:      "Duration of rollout plan execution, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{fluxmetrics.LabelAction, fluxmetrics.LabelOutcome})
)
