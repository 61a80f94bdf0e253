package store

import (
	"sync"
	"sync/atomic"

	"github.com/ghodss/yaml"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/rollout/pkg/resource"
)

// Store is the versioned record of desired state. Publishes are
// atomic and totally ordered; the most recent publish is the single
// "current" desired state. History is append-only, so every publish
// remains auditable.
//
// The current pointer is kept in an atomic.Value: publish swaps it,
// readers load it, and readers never block the writer.
type Store struct {
	logger log.Logger

	mu      sync.Mutex // serializes writers; readers do not take it
	counter uint64
	history []resource.DesiredState

	current atomic.Value // *resource.DesiredState
	changes chan struct{}
}

func NewStore(logger log.Logger) *Store {
	return &Store{
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
}

// Publish validates the spec, stamps it with the next revision,
// appends it to history and swaps the current pointer. Concurrent
// publishes serialize through the writer lock; whichever is admitted
// last is the current state (last-publish-wins), which is an
// ordering, not an error.
func (s *Store) Publish(spec resource.Spec) (resource.Revision, error) {
	if err := spec.Validate(); err != nil {
		return resource.Revision{}, err
	}
	dig, err := spec.ContentDigest()
	if err != nil {
		return resource.Revision{}, errors.Wrap(err, "computing revision digest")
	}

	s.mu.Lock()
	s.counter++
	state := resource.DesiredState{
		Spec:     spec,
		Revision: resource.Revision{Counter: s.counter, Digest: dig},
	}
	s.history = append(s.history, state)
	s.current.Store(&state)
	s.mu.Unlock()

	s.logger.Log("event", "publish", "revision", state.Revision.String(), "image", spec.Image.String(), "replicas", spec.Replicas)
	s.notify()
	return state.Revision, nil
}

// Current returns the last published desired state. The second
// return value is false until the first publish.
func (s *Store) Current() (resource.DesiredState, bool) {
	v := s.current.Load()
	if v == nil {
		return resource.DesiredState{}, false
	}
	return *(v.(*resource.DesiredState)), true
}

// Changes signals that a publish has happened. The channel has a
// buffer of one, so signals coalesce: a slow consumer sees "at least
// one publish since last receive", which is all the reconciliation
// loop needs.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// History returns a copy of all published desired states, oldest
// first.
func (s *Store) History() []resource.DesiredState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]resource.DesiredState, len(s.history))
	copy(out, s.history)
	return out
}

// Export renders the publish history as YAML.
func (s *Store) Export() ([]byte, error) {
	history := s.History()
	out, err := yaml.Marshal(history)
	if err != nil {
		return nil, errors.Wrap(err, "exporting desired state history")
	}
	return out, nil
}
