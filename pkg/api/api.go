package api

import (
	"context"

	"github.com/fluxcd/rollout/pkg/event"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/status"
)

// Server is the API the daemon serves: status for dashboards and
// CLIs, the desired-state history for audit, and the publish edge
// the build pipeline calls.
type Server interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)

	Status(ctx context.Context) (status.Summary, error)
	Export(ctx context.Context) ([]byte, error)
	History(ctx context.Context) ([]resource.DesiredState, error)
	Events(ctx context.Context) ([]event.Event, error)

	PublishImage(ctx context.Context, ref image.Ref) (resource.Revision, error)
	PublishSpec(ctx context.Context, spec resource.Spec) (resource.Revision, error)
}

// PublishRequest is the body of a publish call: either a bare image
// reference (spec carried over from the current desired state) or a
// full spec.
type PublishRequest struct {
	Image string         `json:"image,omitempty"`
	Spec  *resource.Spec `json:"spec,omitempty"`
}

// PublishResponse carries the revision the publish was admitted as.
type PublishResponse struct {
	Revision resource.Revision `json:"revision"`
}
