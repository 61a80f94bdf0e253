package observer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"golang.org/x/time/rate"

	"github.com/fluxcd/rollout/pkg/cluster"
)

// StaleSnapshotError reports that the runtime could not be observed
// and the returned snapshot is the last known-good one. Callers must
// reuse that snapshot rather than treat the cluster as empty, else a
// transient outage looks like scale-to-zero.
type StaleSnapshotError struct {
	Err error
	// HaveLastGood is true when the snapshot returned alongside this
	// error is a previous known-good one, and so still usable.
	HaveLastGood bool
}

func (e *StaleSnapshotError) Error() string {
	return "live state snapshot is stale: " + e.Err.Error()
}

// IsStale reports whether err is a StaleSnapshotError.
func IsStale(err error) bool {
	_, ok := err.(*StaleSnapshotError)
	return ok
}

// Observer produces trusted live-state snapshots from a runtime. It
// bounds each observation with a timeout, rate-limits polling, falls
// back to the last known-good snapshot on transient failure, and
// debounces readiness flaps: a readiness transition is only believed
// once it has been seen in two consecutive observations.
type Observer struct {
	runtime cluster.Runtime
	logger  log.Logger
	timeout time.Duration
	limiter *rate.Limiter

	mu       sync.Mutex
	lastGood cluster.LiveState
	haveGood bool
	previous map[cluster.InstanceID]string // raw readiness from the prior cycle
	settled  map[cluster.InstanceID]string // readiness we currently trust
}

// Config carries the observer's knobs.
type Config struct {
	// Timeout bounds a single runtime observation.
	Timeout time.Duration
	// MinInterval is the shortest allowed gap between observations;
	// zero disables rate limiting.
	MinInterval time.Duration
}

func New(runtime cluster.Runtime, logger log.Logger, cfg Config) *Observer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Observer{
		runtime:  runtime,
		logger:   logger,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, 1),
		previous: map[cluster.InstanceID]string{},
		settled:  map[cluster.InstanceID]string{},
	}
}

// Observe returns a trusted snapshot of the live state. On transient
// runtime failure it returns the last known-good snapshot together
// with a *StaleSnapshotError; only when there has never been a good
// snapshot is the state unusable.
func (o *Observer) Observe(ctx context.Context) (cluster.LiveState, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return o.stale(err)
	}

	octx, cancel := context.WithTimeout(ctx, o.timeout)
	raw, err := o.runtime.Observe(octx)
	cancel()
	if err != nil {
		return o.stale(err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	state := o.debounce(raw)
	o.lastGood = state
	o.haveGood = true
	return state, nil
}

func (o *Observer) stale(cause error) (cluster.LiveState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logger.Log("warning", "observation failed, reusing last snapshot", "err", cause)
	if !o.haveGood {
		return cluster.LiveState{}, &StaleSnapshotError{Err: cause}
	}
	return o.lastGood, &StaleSnapshotError{Err: cause, HaveLastGood: true}
}

// debounce resolves each instance's trusted readiness. A new
// instance is taken at face value; a known instance's readiness is
// only updated once the same value has been seen twice in a row,
// otherwise the previously trusted value is carried forward.
func (o *Observer) debounce(raw cluster.LiveState) cluster.LiveState {
	seen := map[cluster.InstanceID]bool{}
	out := cluster.LiveState{Instances: make([]cluster.Instance, 0, len(raw.Instances))}

	for _, inst := range raw.Instances {
		seen[inst.ID] = true
		trusted, known := o.settled[inst.ID]
		switch {
		case !known:
			trusted = inst.Readiness
		case inst.Readiness == o.previous[inst.ID]:
			trusted = inst.Readiness
		}
		o.previous[inst.ID] = inst.Readiness
		o.settled[inst.ID] = trusted

		inst.Readiness = trusted
		out.Instances = append(out.Instances, inst)
	}

	// forget instances that are gone
	for id := range o.settled {
		if !seen[id] {
			delete(o.settled, id)
			delete(o.previous, id)
		}
	}

	sort.Slice(out.Instances, func(i, j int) bool {
		return out.Instances[i].ID < out.Instances[j].ID
	})
	return out
}
