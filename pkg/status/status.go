package status

import (
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/fluxcd/rollout/pkg/resource"
	rolloutsync "github.com/fluxcd/rollout/pkg/sync"
)

// Status is the externally visible summary of whether live state
// matches desired state.
type Status string

const (
	StatusSynced      Status = "Synced"
	StatusOutOfSync   Status = "OutOfSync"
	StatusProgressing Status = "Progressing"
	StatusDegraded    Status = "Degraded"
	StatusError       Status = "Error"
)

// Derive maps the reconciler's state to a Status. It owns no state
// of its own; it is recomputed from its inputs every cycle.
func Derive(state rolloutsync.State, err error) Status {
	if state == rolloutsync.StateDegraded {
		return StatusDegraded
	}
	if err != nil {
		return StatusError
	}
	switch state {
	case rolloutsync.StateProgressing:
		return StatusProgressing
	case rolloutsync.StateOutOfSync:
		return StatusOutOfSync
	case rolloutsync.StateSynced:
		return StatusSynced
	default:
		return StatusError
	}
}

// Summary is what external pollers see.
type Summary struct {
	Status Status `json:"status"`
	// Reason is set for Degraded and Error.
	Reason string `json:"reason,omitempty"`
	// Revision is the desired-state revision the engine is converged
	// on, or converging toward.
	Revision resource.Revision `json:"revision"`
	// RolloutInFlight is true while a plan is being executed.
	RolloutInFlight bool      `json:"rolloutInFlight"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Reporter records the latest summary and exposes it for polling.
type Reporter struct {
	mu      sync.RWMutex
	summary Summary
	gauge   metrics.Gauge
	now     func() time.Time
}

// NewReporter returns a reporter. The gauge, if not nil, is set to a
// numeric encoding of the status on every record: 0 Synced,
// 1 OutOfSync, 2 Progressing, 3 Degraded, 4 Error.
func NewReporter(gauge metrics.Gauge) *Reporter {
	return &Reporter{gauge: gauge, now: time.Now}
}

func (r *Reporter) Record(state rolloutsync.State, rolloutInFlight bool, rev resource.Revision, err error) {
	status := Derive(state, err)
	var reason string
	if err != nil {
		reason = err.Error()
	}

	r.mu.Lock()
	r.summary = Summary{
		Status:          status,
		Reason:          reason,
		Revision:        rev,
		RolloutInFlight: rolloutInFlight,
		UpdatedAt:       r.now(),
	}
	r.mu.Unlock()

	if r.gauge != nil {
		r.gauge.Set(gaugeValue(status))
	}
}

// Current returns the most recently recorded summary.
func (r *Reporter) Current() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}

func gaugeValue(s Status) float64 {
	switch s {
	case StatusSynced:
		return 0
	case StatusOutOfSync:
		return 1
	case StatusProgressing:
		return 2
	case StatusDegraded:
		return 3
	default:
		return 4
	}
}
