package daemon

import (
	"context"
	"time"

	"github.com/fluxcd/rollout/pkg/cluster"
	"github.com/fluxcd/rollout/pkg/event"
	fluxmetrics "github.com/fluxcd/rollout/pkg/metrics"
	"github.com/fluxcd/rollout/pkg/observer"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/rollout"
	rolloutsync "github.com/fluxcd/rollout/pkg/sync"
)

// Sync is one reconciliation tick: read a coherent pair of desired
// and live state, diff them, and execute the resulting plan. Desired
// state is read exactly once per tick, so a tick never straddles two
// publishes; a publish landing mid-tick supersedes the plan instead.
func (d *Daemon) Sync(ctx context.Context) error {
	desired, ok := d.Store.Current()
	if !ok {
		// nothing has been declared yet, so nothing to converge
		return nil
	}

	// The sync timeout bounds observing and planning only. An
	// executing rollout answers to its own batch and overall
	// timeouts, which are typically much longer than a tick.
	octx, cancel := context.WithTimeout(ctx, d.SyncTimeout)
	live, err := d.Observer.Observe(octx)
	cancel()
	if err != nil {
		stale, isStale := err.(*observer.StaleSnapshotError)
		if !isStale || !stale.HaveLastGood {
			// no usable snapshot; touching the cluster now could
			// only do damage
			state, _, _ := d.getState()
			d.Reporter.Record(state, false, desired.Revision, err)
			return err
		}
		d.Logger.Log("warning", "reconciling against last known-good snapshot", "err", err)
	}

	action := rolloutsync.Diff(desired, live)
	state, degradedRev, degradedErr := d.getState()

	if action.Kind() == cluster.KindNoOp {
		if live.Ready() >= desired.Replicas {
			if state != rolloutsync.StateSynced {
				d.logEvent(event.EventSync, desired.Revision, event.LogLevelInfo, "converged on revision "+desired.Revision.String())
			}
			d.setState(rolloutsync.StateSynced)
			d.Reporter.Record(rolloutsync.StateSynced, false, desired.Revision, nil)
			return nil
		}
		// the right instances exist but not all are ready yet
		if state == rolloutsync.StateDegraded && !degradedRev.Zero() && degradedRev == desired.Revision {
			d.Reporter.Record(state, false, desired.Revision, degradedErr)
			return nil
		}
		d.Reporter.Record(rolloutsync.StateProgressing, false, desired.Revision, nil)
		return nil
	}

	if state == rolloutsync.StateDegraded && !degradedRev.Zero() && degradedRev == desired.Revision {
		// the rollout for this very revision already failed; hold
		// position until a newer desired state is published
		d.Reporter.Record(state, false, desired.Revision, degradedErr)
		return nil
	}

	d.setState(rolloutsync.StateProgressing)
	d.Reporter.Record(rolloutsync.StateProgressing, true, desired.Revision, nil)
	d.logEvent(event.EventRollout, desired.Revision, event.LogLevelInfo, action.String())

	started := time.Now()
	err = d.Rollout.Run(ctx, action, desired)
	rolloutDuration.With(
		fluxmetrics.LabelAction, string(action.Kind()),
		fluxmetrics.LabelOutcome, outcome(err),
	).Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
		d.setState(rolloutsync.StateSynced)
		d.Reporter.Record(rolloutsync.StateSynced, false, desired.Revision, nil)
		d.logEvent(event.EventRolloutComplete, desired.Revision, event.LogLevelInfo, "rollout complete")
		// re-verify on the next tick
		d.AskForSync()
	case rollout.IsSuperseded(err):
		d.setState(rolloutsync.StateOutOfSync)
		d.Reporter.Record(rolloutsync.StateOutOfSync, false, desired.Revision, nil)
		d.logEvent(event.EventSync, desired.Revision, event.LogLevelInfo, "plan abandoned, newer desired state published")
		d.AskForSync()
	case rollout.IsFailed(err):
		d.setDegraded(desired.Revision, err)
		d.Reporter.Record(rolloutsync.StateDegraded, false, desired.Revision, err)
		d.logEvent(event.EventRolloutFailed, desired.Revision, event.LogLevelError, err.Error())
	default:
		// transient; the next tick retries
		d.setState(rolloutsync.StateOutOfSync)
		d.Reporter.Record(rolloutsync.StateOutOfSync, false, desired.Revision, err)
		return err
	}
	return nil
}

func (d *Daemon) logEvent(typ string, rev resource.Revision, level, message string) {
	if d.EventWriter == nil {
		return
	}
	now := time.Now().UTC()
	if err := d.EventWriter.LogEvent(event.Event{
		Type:      typ,
		Revision:  rev,
		StartedAt: now,
		EndedAt:   now,
		LogLevel:  level,
		Message:   message,
	}); err != nil {
		d.Logger.Log("err", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "complete"
	case rollout.IsSuperseded(err):
		return "superseded"
	case rollout.IsFailed(err):
		return "failed"
	default:
		return "error"
	}
}
