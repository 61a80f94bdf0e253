package resource

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/fluxcd/rollout/pkg/image"
)

// Capacity names an amount of a compute resource, e.g. "250m" CPU or
// "64Mi" memory. The values are opaque to the engine; they are handed
// to the runtime verbatim.
type Capacity struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// Requirements carries the resource requests and limits instances are
// created with.
type Requirements struct {
	Requests Capacity `json:"requests,omitempty"`
	Limits   Capacity `json:"limits,omitempty"`
}

// Probe describes the readiness check the runtime performs against
// each instance: an HTTP GET of Path, starting after InitialDelay,
// repeated every Period.
type Probe struct {
	Path         string        `json:"path"`
	InitialDelay time.Duration `json:"initialDelay"`
	Period       time.Duration `json:"period"`
}

// Revision identifies a published DesiredState. The counter is
// assigned by the store and totally orders publishes; the digest is
// content-addressed, computed over the canonical JSON encoding of the
// spec, so identical specs republished get distinct counters but the
// same digest.
type Revision struct {
	Counter uint64        `json:"counter"`
	Digest  digest.Digest `json:"digest"`
}

// Zero reports whether this revision is the absent revision, i.e. no
// publish has happened.
func (r Revision) Zero() bool {
	return r.Counter == 0
}

// After reports whether r was published after other.
func (r Revision) After(other Revision) bool {
	return r.Counter > other.Counter
}

func (r Revision) String() string {
	if r.Zero() {
		return "none"
	}
	return fmt.Sprintf("%d (%s)", r.Counter, r.Digest)
}

// Spec is the declared target for a managed workload: which image to
// run, how many replicas, and how instances are provisioned and
// probed. Specs are values; nothing mutates one after construction.
type Spec struct {
	Image       image.Ref    `json:"image"`
	Replicas    int          `json:"replicas"`
	Resources   Requirements `json:"resources,omitempty"`
	HealthCheck Probe        `json:"healthCheck"`
}

// DesiredState is a Spec plus the Revision the store stamped it with
// at publish time. A DesiredState is immutable once published; a new
// publish yields a new DesiredState, never an edit in place.
type DesiredState struct {
	Spec
	Revision Revision `json:"revision"`
}

// ValidationError is returned when a Spec is rejected at the publish
// boundary. Specs failing validation never reach reconciliation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid desired state: " + e.Reason
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// Validate checks the structural constraints on a Spec.
func (s Spec) Validate() error {
	if s.Image.Name.String() == "" {
		return &ValidationError{Reason: "image reference is empty"}
	}
	if s.Replicas < 0 {
		return &ValidationError{Reason: fmt.Sprintf("replica count %d is negative", s.Replicas)}
	}
	return nil
}

// ContentDigest computes the content-addressed token for a Spec from
// its canonical JSON encoding.
func (s Spec) ContentDigest() (digest.Digest, error) {
	bytes, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "encoding spec for digest")
	}
	return digest.SHA256.FromBytes(bytes), nil
}
