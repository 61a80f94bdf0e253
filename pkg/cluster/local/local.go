package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fluxcd/rollout/pkg/cluster"
)

// ErrCompositeAction is returned when an action that should have
// been decomposed by the rollout controller reaches the runtime.
var ErrCompositeAction = errors.New("composite action applied to runtime")

// Prober decides whether an instance passes its readiness check.
type Prober interface {
	Probe(ctx context.Context, spec cluster.InstanceSpec, id cluster.InstanceID) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, spec cluster.InstanceSpec, id cluster.InstanceID) bool

func (f ProberFunc) Probe(ctx context.Context, spec cluster.InstanceSpec, id cluster.InstanceID) bool {
	return f(ctx, spec, id)
}

// AlwaysReady passes every readiness check.
var AlwaysReady = ProberFunc(func(context.Context, cluster.InstanceSpec, cluster.InstanceID) bool {
	return true
})

// NeverReady fails every readiness check.
var NeverReady = ProberFunc(func(context.Context, cluster.InstanceSpec, cluster.InstanceID) bool {
	return false
})

type instance struct {
	spec      cluster.InstanceSpec
	startedAt time.Time
	ready     bool
	lastProbe time.Time
}

// Cluster is an in-memory cluster.Runtime. It runs no real
// workloads; instances become ready when the configured prober says
// so, after the spec's initial delay and at most once per probe
// period. It serves as the stand-in orchestrator for tests and for
// running the daemon without a cluster.
type Cluster struct {
	prober Prober
	now    func() time.Time

	mu        sync.Mutex
	instances map[cluster.InstanceID]*instance
	nextID    int
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithProber sets the readiness prober. The default is AlwaysReady.
func WithProber(p Prober) Option {
	return func(c *Cluster) { c.prober = p }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cluster) { c.now = now }
}

func NewCluster(opts ...Option) *Cluster {
	c := &Cluster{
		prober:    AlwaysReady,
		now:       time.Now,
		instances: map[cluster.InstanceID]*instance{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ cluster.Runtime = &Cluster{}

func (c *Cluster) Ping(ctx context.Context) error {
	return nil
}

// Observe rebuilds the live state from scratch. Readiness of
// not-yet-ready instances is re-evaluated here, which stands in for
// the orchestrator's own probe loop.
func (c *Cluster) Observe(ctx context.Context) (cluster.LiveState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var state cluster.LiveState
	for id, inst := range c.instances {
		if !inst.ready && c.dueForProbe(inst, now) {
			inst.lastProbe = now
			inst.ready = c.prober.Probe(ctx, inst.spec, id)
		}
		readiness := cluster.ReadinessNotReady
		if inst.ready {
			readiness = cluster.ReadinessReady
		}
		state.Instances = append(state.Instances, cluster.Instance{
			ID:        id,
			Image:     inst.spec.Image,
			Readiness: readiness,
			StartedAt: inst.startedAt,
		})
	}
	return state, nil
}

func (c *Cluster) dueForProbe(inst *instance, now time.Time) bool {
	if now.Sub(inst.startedAt) < inst.spec.Probe.InitialDelay {
		return false
	}
	return inst.lastProbe.IsZero() || now.Sub(inst.lastProbe) >= inst.spec.Probe.Period
}

func (c *Cluster) Apply(ctx context.Context, action cluster.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch a := action.(type) {
	case cluster.NoOp:
		return nil
	case cluster.ScaleUp:
		for i := 0; i < a.Count; i++ {
			c.nextID++
			id := cluster.InstanceID(fmt.Sprintf("inst-%d", c.nextID))
			c.instances[id] = &instance{
				spec:      a.Spec,
				startedAt: c.now(),
			}
		}
		return nil
	case cluster.ScaleDown:
		for _, id := range a.Instances {
			// removing an already-gone instance is not an error
			delete(c.instances, id)
		}
		return nil
	default:
		return errors.Wrapf(ErrCompositeAction, "%s", action.Kind())
	}
}

// Len returns the number of instances currently running.
func (c *Cluster) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}
