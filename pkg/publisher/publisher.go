package publisher

import (
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/rollout/pkg/event"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/policy"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/store"
)

var (
	// ErrTagRejected means the image tag does not pass the
	// configured admission pattern.
	ErrTagRejected = errors.New("image tag rejected by policy")
	// ErrAlreadyCurrent means the image is already the current
	// desired state; nothing is published.
	ErrAlreadyCurrent = errors.New("image is already the current desired state")
	// ErrNoBaseline means there is no current desired state to
	// derive replica count and health-check configuration from.
	ErrNoBaseline = errors.New("no baseline desired state; publish a full spec first")
)

// Publisher is the inbound edge of the engine: the build pipeline
// hands it each newly built image reference, and it turns admissible
// ones into desired-state publishes. Everything except the image is
// carried over from the current desired state.
type Publisher struct {
	store   *store.Store
	pattern policy.Pattern
	logger  log.Logger
	events  event.EventWriter
}

func New(s *store.Store, pattern policy.Pattern, logger log.Logger, events event.EventWriter) *Publisher {
	if pattern == nil {
		pattern = policy.PatternAll
	}
	return &Publisher{
		store:   s,
		pattern: pattern,
		logger:  logger,
		events:  events,
	}
}

// PublishImage publishes a new desired state running the given
// image. The tag must match the admission pattern; when the pattern
// is semver, tags older than the current one are rejected too.
func (p *Publisher) PublishImage(ref image.Ref) (resource.Revision, error) {
	if ref.Tag == "" {
		return resource.Revision{}, errors.Wrap(ErrTagRejected, "image has no tag")
	}
	if !p.pattern.Matches(ref.Tag) {
		return resource.Revision{}, errors.Wrapf(ErrTagRejected, "tag %q does not match pattern %s", ref.Tag, p.pattern.String())
	}

	current, ok := p.store.Current()
	if !ok {
		return resource.Revision{}, ErrNoBaseline
	}
	if current.Image == ref {
		return resource.Revision{}, ErrAlreadyCurrent
	}
	if _, semver := p.pattern.(policy.SemverPattern); semver {
		if current.Image.Name == ref.Name && !image.NewerBySemver(ref.Tag, current.Image.Tag) {
			return resource.Revision{}, errors.Wrapf(ErrTagRejected, "tag %q is not newer than current %q", ref.Tag, current.Image.Tag)
		}
	}

	spec := current.Spec
	spec.Image = ref
	rev, err := p.store.Publish(spec)
	if err != nil {
		return resource.Revision{}, err
	}

	p.logger.Log("event", "image-published", "image", ref.String(), "revision", rev.String())
	p.logEvent(rev, "published image "+ref.String())
	return rev, nil
}

// PublishSpec publishes a complete desired state, bypassing tag
// admission. This is how the first baseline gets in, and how replica
// count or probe changes are made.
func (p *Publisher) PublishSpec(spec resource.Spec) (resource.Revision, error) {
	rev, err := p.store.Publish(spec)
	if err != nil {
		return resource.Revision{}, err
	}
	p.logEvent(rev, "published desired state")
	return rev, nil
}

func (p *Publisher) logEvent(rev resource.Revision, message string) {
	if p.events == nil {
		return
	}
	now := time.Now().UTC()
	if err := p.events.LogEvent(event.Event{
		Type:      event.EventPublish,
		Revision:  rev,
		StartedAt: now,
		EndedAt:   now,
		LogLevel:  event.LogLevelInfo,
		Message:   message,
	}); err != nil {
		p.logger.Log("err", err)
	}
}
