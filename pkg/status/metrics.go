package status

import (
	"github.com/go-kit/kit/metrics"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// NewStatusGauge registers and returns the gauge the reporter keeps
// current. Values follow gaugeValue: 0 synced, 1 out of sync, 2
// progressing, 3 degraded, 4 error.
func NewStatusGauge() metrics.Gauge {
	return kitprom.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "rollout",
		Subsystem: "daemon",
		Name:      "sync_status",
		Help:      "Current sync status of the daemon.",
	}, []string{})
}
