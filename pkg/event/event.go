package event

import (
	"time"

	"github.com/fluxcd/rollout/pkg/resource"
)

// These are all the types of events.
const (
	EventPublish         = "publish"
	EventSync            = "sync"
	EventRollout         = "rollout"
	EventRolloutComplete = "rollout_complete"
	EventRolloutFailed   = "rollout_failed"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type EventID int64

// Event is one entry in the engine's audit history: a publish, a
// sync outcome, or a rollout outcome.
type Event struct {
	// ID is assigned when the event is recorded.
	ID EventID `json:"id"`

	// Type is one of the Event... constants above.
	Type string `json:"type"`

	// Revision of the desired state this event concerns.
	Revision resource.Revision `json:"revision"`

	// StartedAt is the time the event began. EndedAt is when it
	// ended; for instantaneous events it equals StartedAt.
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`

	// LogLevel indicates how important the event is:
	// `debug|info|warn|error`.
	LogLevel string `json:"logLevel"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`
}

// EventWriter records events in the history.
type EventWriter interface {
	LogEvent(Event) error
}
