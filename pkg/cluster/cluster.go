package cluster

import (
	"context"
	"time"

	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/resource"
)

// Constants for instance readiness. These are defined here so that
// no-one has to drag in a particular orchestrator's dependencies to
// be able to use them.
const (
	ReadinessNotReady = "notready"
	ReadinessReady    = "ready"
)

// The things we need from the running cluster: a snapshot of what is
// actually running, and a way to apply convergence actions. Any
// orchestrator that can answer these two calls is substitutable.
type Runtime interface {
	// Observe lists the running instances and their readiness. The
	// snapshot is rebuilt from scratch on every call; it is never an
	// incremental mutation of a previous snapshot.
	Observe(ctx context.Context) (LiveState, error)
	// Apply performs one primitive convergence action (ScaleUp,
	// ScaleDown or NoOp). Composite actions are decomposed by the
	// rollout controller before they reach the runtime.
	Apply(ctx context.Context, action Action) error
	Ping(ctx context.Context) error
}

// InstanceID identifies a running instance within the runtime.
type InstanceID string

// Instance is one running replica as reported by the runtime.
type Instance struct {
	ID        InstanceID `json:"id"`
	Image     image.Ref  `json:"image"`
	Readiness string     `json:"readiness"`
	StartedAt time.Time  `json:"startedAt"`
}

func (i Instance) Ready() bool {
	return i.Readiness == ReadinessReady
}

// LiveState is the observed set of running instances.
type LiveState struct {
	Instances []Instance `json:"instances"`
}

// Ready counts instances reporting ready.
func (s LiveState) Ready() int {
	var n int
	for _, inst := range s.Instances {
		if inst.Ready() {
			n++
		}
	}
	return n
}

// ReadyWithImage counts ready instances running the given image.
func (s LiveState) ReadyWithImage(ref image.Ref) int {
	var n int
	for _, inst := range s.Instances {
		if inst.Ready() && inst.Image == ref {
			n++
		}
	}
	return n
}

// WithImage returns the instances running the given image.
func (s LiveState) WithImage(ref image.Ref) []Instance {
	var out []Instance
	for _, inst := range s.Instances {
		if inst.Image == ref {
			out = append(out, inst)
		}
	}
	return out
}

// NotWithImage returns the instances running any other image.
func (s LiveState) NotWithImage(ref image.Ref) []Instance {
	var out []Instance
	for _, inst := range s.Instances {
		if inst.Image != ref {
			out = append(out, inst)
		}
	}
	return out
}

// Find returns the instance with the given ID, if present.
func (s LiveState) Find(id InstanceID) (Instance, bool) {
	for _, inst := range s.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return Instance{}, false
}

// InstanceSpec is everything the runtime needs to create an instance.
type InstanceSpec struct {
	Image     image.Ref             `json:"image"`
	Resources resource.Requirements `json:"resources,omitempty"`
	Probe     resource.Probe        `json:"probe"`
}

// SpecFor derives the instance spec from a desired state.
func SpecFor(desired resource.DesiredState) InstanceSpec {
	return InstanceSpec{
		Image:     desired.Image,
		Resources: desired.Resources,
		Probe:     desired.HealthCheck,
	}
}
