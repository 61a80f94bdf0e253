package event

import (
	"sync"
)

// Ring is an in-memory EventWriter keeping the most recent events.
// It stands in for a durable history store; external systems that
// need the full history should consume events as they are written.
type Ring struct {
	mu     sync.Mutex
	nextID EventID
	events []Event
	size   int
}

// NewRing returns a ring buffer holding at most size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 100
	}
	return &Ring{size: size}
}

var _ EventWriter = &Ring{}

func (r *Ring) LogEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.events = append(r.events, e)
	if len(r.events) > r.size {
		r.events = r.events[len(r.events)-r.size:]
	}
	return nil
}

// Events returns the retained events, oldest first.
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
