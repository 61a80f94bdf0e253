package sync

import (
	"sort"

	"github.com/fluxcd/rollout/pkg/cluster"
	"github.com/fluxcd/rollout/pkg/resource"
)

// State is the reconciler's per-resource state.
type State string

const (
	StateSynced      State = "Synced"
	StateOutOfSync   State = "OutOfSync"
	StateProgressing State = "Progressing"
	StateDegraded    State = "Degraded"
)

// Diff computes the convergence action that moves live state toward
// desired state. It is pure and deterministic: unchanged inputs
// yield an identical action, and a converged pair yields NoOp, which
// is what makes reconciliation idempotent.
//
// When both the image and the replica count differ, the image change
// takes precedence: the plan is a Replace toward the new image at
// the new replica count, so new-image instances are created before
// any old-image instance is drained.
func Diff(desired resource.DesiredState, live cluster.LiveState) cluster.Action {
	old := live.NotWithImage(desired.Image)
	current := live.WithImage(desired.Image)

	// Scaling to zero needs no surge choreography; drain everything.
	if desired.Replicas == 0 {
		if len(live.Instances) == 0 {
			return cluster.NoOp{}
		}
		return cluster.ScaleDown{Instances: victims(live.Instances, len(live.Instances))}
	}

	if len(old) > 0 {
		return cluster.Replace{
			Spec:   cluster.SpecFor(desired),
			Count:  desired.Replicas,
			Remove: drainOrder(old),
		}
	}

	switch n := len(current); {
	case n < desired.Replicas:
		return cluster.ScaleUp{
			Spec:  cluster.SpecFor(desired),
			Count: desired.Replicas - n,
		}
	case n > desired.Replicas:
		return cluster.ScaleDown{
			Instances: victims(current, n-desired.Replicas),
		}
	default:
		return cluster.NoOp{}
	}
}

// InSync reports whether live state already matches desired state.
func InSync(desired resource.DesiredState, live cluster.LiveState) bool {
	if _, ok := Diff(desired, live).(cluster.NoOp); !ok {
		return false
	}
	return live.Ready() == desired.Replicas
}

// victims picks count instances to remove: not-ready instances go
// first, then the youngest, so removal costs the least readiness.
func victims(instances []cluster.Instance, count int) []cluster.InstanceID {
	ordered := make([]cluster.Instance, len(instances))
	copy(ordered, instances)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Ready() != ordered[j].Ready() {
			return !ordered[i].Ready()
		}
		if !ordered[i].StartedAt.Equal(ordered[j].StartedAt) {
			return ordered[i].StartedAt.After(ordered[j].StartedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})
	if count > len(ordered) {
		count = len(ordered)
	}
	ids := make([]cluster.InstanceID, count)
	for i := 0; i < count; i++ {
		ids[i] = ordered[i].ID
	}
	return ids
}

// drainOrder orders old-image instances for draining: not-ready
// first, then oldest first, so long-lived healthy instances are the
// last to go.
func drainOrder(instances []cluster.Instance) []cluster.InstanceID {
	ordered := make([]cluster.Instance, len(instances))
	copy(ordered, instances)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Ready() != ordered[j].Ready() {
			return !ordered[i].Ready()
		}
		if !ordered[i].StartedAt.Equal(ordered[j].StartedAt) {
			return ordered[i].StartedAt.Before(ordered[j].StartedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})
	ids := make([]cluster.InstanceID, len(ordered))
	for i, inst := range ordered {
		ids[i] = inst.ID
	}
	return ids
}
