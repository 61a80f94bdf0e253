package cluster

import (
	"fmt"
	"strings"
)

// Kind tags the variants of a convergence action.
type Kind string

const (
	KindScaleUp   Kind = "ScaleUp"
	KindScaleDown Kind = "ScaleDown"
	KindReplace   Kind = "ReplaceInstance"
	KindNoOp      Kind = "NoOp"
)

// Action is one convergence action computed by the reconciler.
// Actions are produced fresh on each reconciliation tick and never
// persisted.
type Action interface {
	Kind() Kind
	String() string
}

// ScaleUp creates Count new instances from Spec.
type ScaleUp struct {
	Spec  InstanceSpec
	Count int
}

func (a ScaleUp) Kind() Kind { return KindScaleUp }

func (a ScaleUp) String() string {
	return fmt.Sprintf("scale up by %d with image %s", a.Count, a.Spec.Image)
}

// ScaleDown removes the named instances.
type ScaleDown struct {
	Instances []InstanceID
}

func (a ScaleDown) Kind() Kind { return KindScaleDown }

func (a ScaleDown) String() string {
	ids := make([]string, len(a.Instances))
	for i, id := range a.Instances {
		ids[i] = string(id)
	}
	return fmt.Sprintf("scale down removing [%s]", strings.Join(ids, ", "))
}

// Replace is the composite action for an image change: create
// instances from Spec until Count run the new image, draining the
// named old instances as the new ones become ready. The rollout
// controller decomposes it into ScaleUp/ScaleDown steps bounded by
// surge and unavailability limits; the runtime never sees it.
type Replace struct {
	Spec   InstanceSpec
	Count  int
	Remove []InstanceID
}

func (a Replace) Kind() Kind { return KindReplace }

func (a Replace) String() string {
	return fmt.Sprintf("replace %d instance(s) with image %s", len(a.Remove), a.Spec.Image)
}

// NoOp means live state already matches desired state.
type NoOp struct{}

func (a NoOp) Kind() Kind { return KindNoOp }

func (a NoOp) String() string { return "no-op" }
