package daemon

import (
	"context"
	stdsync "sync"

	"github.com/go-kit/kit/log"

	"github.com/fluxcd/rollout/pkg/api"
	"github.com/fluxcd/rollout/pkg/cluster"
	"github.com/fluxcd/rollout/pkg/event"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/observer"
	"github.com/fluxcd/rollout/pkg/publisher"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/rollout"
	"github.com/fluxcd/rollout/pkg/status"
	"github.com/fluxcd/rollout/pkg/store"
	rolloutsync "github.com/fluxcd/rollout/pkg/sync"
)

// Daemon ties the engine together: one reconciliation loop per
// managed resource, reading the store and the observer, planning
// with the differ and executing plans with the rollout controller.
type Daemon struct {
	V           string
	Store       *store.Store
	Observer    *observer.Observer
	Runtime     cluster.Runtime
	Rollout     *rollout.Controller
	Publisher   *publisher.Publisher
	Reporter    *status.Reporter
	EventWriter event.EventWriter
	EventReader *event.Ring
	Logger      log.Logger

	// reconciler state machine; guarded by stateMu. The degraded
	// revision remembers which desired state the rollout failed for,
	// so the halt lasts exactly until a newer publish.
	stateMu     stdsync.Mutex
	state       rolloutsync.State
	degradedRev resource.Revision
	degradedErr error

	// bookkeeping
	*LoopVars
}

// Invariant.
var _ api.Server = &Daemon{}

func (d *Daemon) Version(ctx context.Context) (string, error) {
	return d.V, nil
}

func (d *Daemon) Ping(ctx context.Context) error {
	return d.Runtime.Ping(ctx)
}

func (d *Daemon) Status(ctx context.Context) (status.Summary, error) {
	return d.Reporter.Current(), nil
}

func (d *Daemon) Export(ctx context.Context) ([]byte, error) {
	return d.Store.Export()
}

func (d *Daemon) History(ctx context.Context) ([]resource.DesiredState, error) {
	return d.Store.History(), nil
}

func (d *Daemon) Events(ctx context.Context) ([]event.Event, error) {
	if d.EventReader == nil {
		return nil, nil
	}
	return d.EventReader.Events(), nil
}

func (d *Daemon) PublishImage(ctx context.Context, ref image.Ref) (resource.Revision, error) {
	return d.Publisher.PublishImage(ref)
}

func (d *Daemon) PublishSpec(ctx context.Context, spec resource.Spec) (resource.Revision, error) {
	return d.Publisher.PublishSpec(spec)
}

func (d *Daemon) getState() (rolloutsync.State, resource.Revision, error) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state, d.degradedRev, d.degradedErr
}

func (d *Daemon) setState(s rolloutsync.State) {
	d.stateMu.Lock()
	d.state = s
	if s != rolloutsync.StateDegraded {
		d.degradedRev = resource.Revision{}
		d.degradedErr = nil
	}
	d.stateMu.Unlock()
}

func (d *Daemon) setDegraded(rev resource.Revision, err error) {
	d.stateMu.Lock()
	d.state = rolloutsync.StateDegraded
	d.degradedRev = rev
	d.degradedErr = err
	d.stateMu.Unlock()
}
