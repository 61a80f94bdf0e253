package rollout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/rollout/pkg/cluster"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/resource"
)

// Bounds limit how far a rollout may stray from the target replica
// count: at most MaxSurge instances above it, and the number of
// ready instances never below target − MaxUnavailable.
type Bounds struct {
	MaxSurge       int
	MaxUnavailable int
}

func (b Bounds) normalized() Bounds {
	if b.MaxSurge < 0 {
		b.MaxSurge = 0
	}
	if b.MaxUnavailable < 0 {
		b.MaxUnavailable = 0
	}
	// both zero would mean no step can ever make progress
	if b.MaxSurge == 0 && b.MaxUnavailable == 0 {
		b.MaxSurge = 1
	}
	return b
}

// Config carries the rollout controller's knobs.
type Config struct {
	Bounds
	// BatchTimeout bounds the wait for one created batch to become
	// ready; a lapse counts against the health-gate budget.
	BatchTimeout time.Duration
	// OverallTimeout bounds a whole rollout run.
	OverallTimeout time.Duration
	// GateRetryBudget is how many consecutive health-gate failures
	// are tolerated before the rollout is declared failed.
	GateRetryBudget int
	// PollInterval is the gap between live-state polls while waiting.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	c.Bounds = c.Bounds.normalized()
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.OverallTimeout == 0 {
		c.OverallTimeout = 10 * time.Minute
	}
	if c.GateRetryBudget == 0 {
		c.GateRetryBudget = 3
	}
	if c.PollInterval == 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// ObserveFunc yields a live-state snapshot; errors may be transient.
type ObserveFunc func(ctx context.Context) (cluster.LiveState, error)

// CurrentFunc yields the current desired state, used to notice when
// a newer publish supersedes the plan being executed.
type CurrentFunc func() (resource.DesiredState, bool)

// Controller executes one convergence plan as a sequence of discrete
// steps against the runtime, never as a single atomic mutation. Each
// step is bounded by the surge/unavailability limits and gated on
// readiness; the whole run is bounded by the overall timeout and is
// abandoned as soon as a newer desired state is published.
type Controller struct {
	runtime cluster.Runtime
	observe ObserveFunc
	current CurrentFunc
	logger  log.Logger
	cfg     Config
}

func NewController(runtime cluster.Runtime, observe ObserveFunc, current CurrentFunc, logger log.Logger, cfg Config) *Controller {
	return &Controller{
		runtime: runtime,
		observe: observe,
		current: current,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// Run executes the plan for the given desired state. It returns nil
// on completion, ErrSuperseded if a newer desired state was
// published mid-flight, or a *FailedError once the health-gate
// budget or the overall deadline is exhausted.
func (c *Controller) Run(parent context.Context, action cluster.Action, desired resource.DesiredState) error {
	if _, ok := action.(cluster.NoOp); ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(parent, c.cfg.OverallTimeout)
	defer cancel()

	var err error
	switch a := action.(type) {
	case cluster.ScaleUp:
		err = c.runScaleUp(ctx, a, desired)
	case cluster.ScaleDown:
		err = c.runScaleDown(ctx, a, desired)
	case cluster.Replace:
		err = c.runReplace(ctx, a, desired)
	default:
		return errors.Errorf("unknown convergence action %q", action.Kind())
	}

	// Only this run's own deadline is the rollout's verdict to make.
	// A caller cancelling or timing out mid-run is not a failure of
	// the rollout, and must not degrade the resource.
	if errors.Cause(err) == context.DeadlineExceeded && parent.Err() == nil {
		return &FailedError{Reason: "overall rollout deadline exceeded"}
	}
	return err
}

func (c *Controller) runScaleUp(ctx context.Context, a cluster.ScaleUp, desired resource.DesiredState) error {
	if err := c.checkSuperseded(desired); err != nil {
		return err
	}
	if err := c.runtime.Apply(ctx, a); err != nil {
		return errors.Wrap(err, "applying scale-up")
	}
	c.logger.Log("event", "scale-up", "count", a.Count, "image", a.Spec.Image.String())

	var gateFailures int
	for {
		ok, err := c.awaitReady(ctx, desired, a.Spec.Image, desired.Replicas)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		gateFailures++
		c.logger.Log("warning", "health gate failed", "failures", gateFailures, "budget", c.cfg.GateRetryBudget)
		if gateFailures >= c.cfg.GateRetryBudget {
			return &FailedError{Reason: fmt.Sprintf("health gate failed %d consecutive times", gateFailures)}
		}
	}
}

func (c *Controller) runScaleDown(ctx context.Context, a cluster.ScaleDown, desired resource.DesiredState) error {
	if err := c.checkSuperseded(desired); err != nil {
		return err
	}
	if err := c.runtime.Apply(ctx, a); err != nil {
		return errors.Wrap(err, "applying scale-down")
	}
	c.logger.Log("event", "scale-down", "count", len(a.Instances))
	return nil
}

// runReplace is the progressive update: create new-image instances
// in batches of at most MaxSurge, wait for each batch to pass its
// readiness gate, and drain old-image instances only while the
// availability floor (target − MaxUnavailable ready instances)
// holds. New instances always come up before old ones go away.
func (c *Controller) runReplace(ctx context.Context, a cluster.Replace, desired resource.DesiredState) error {
	target := a.Spec.Image
	floor := a.Count - c.cfg.MaxUnavailable
	if floor < 0 {
		floor = 0
	}

	var gateFailures int
	for {
		if err := c.checkSuperseded(desired); err != nil {
			return err
		}
		live, err := c.observeFresh(ctx)
		if err != nil {
			return err
		}

		newInsts := live.WithImage(target)
		oldInsts := live.NotWithImage(target)
		readyNew := live.ReadyWithImage(target)

		if len(oldInsts) == 0 && len(newInsts) == a.Count && readyNew == a.Count {
			c.logger.Log("event", "rollout-complete", "image", target.String(), "replicas", a.Count)
			return nil
		}

		// create the next batch; the batch size is whatever surge
		// room is left, so the total never exceeds target + MaxSurge
		need := a.Count - len(newInsts)
		room := a.Count + c.cfg.MaxSurge - len(live.Instances)
		create := minInt(need, room)
		if create > 0 {
			if err := c.runtime.Apply(ctx, cluster.ScaleUp{Spec: a.Spec, Count: create}); err != nil {
				return errors.Wrap(err, "creating replacement batch")
			}
			c.logger.Log("event", "batch-created", "count", create, "image", target.String())

			wantReady := readyNew + create
			if wantReady > a.Count {
				wantReady = a.Count
			}
			ok, err := c.awaitReady(ctx, desired, target, wantReady)
			if err != nil {
				return err
			}
			if !ok {
				gateFailures++
				c.logger.Log("warning", "health gate failed", "failures", gateFailures, "budget", c.cfg.GateRetryBudget)
				if gateFailures >= c.cfg.GateRetryBudget {
					return &FailedError{Reason: fmt.Sprintf("health gate failed %d consecutive times", gateFailures)}
				}
			} else {
				gateFailures = 0
			}
			continue
		}

		// drain old instances: unready ones cost nothing, ready ones
		// only while the floor holds
		headroom := live.Ready() - floor
		var remove []cluster.InstanceID
		for _, id := range a.Remove {
			inst, present := live.Find(id)
			if !present {
				continue
			}
			if !inst.Ready() {
				remove = append(remove, id)
				continue
			}
			if headroom > 0 {
				remove = append(remove, id)
				headroom--
			}
		}
		if len(remove) > 0 {
			if err := c.runtime.Apply(ctx, cluster.ScaleDown{Instances: remove}); err != nil {
				return errors.Wrap(err, "draining old instances")
			}
			c.logger.Log("event", "batch-drained", "count", len(remove))
			continue
		}

		// no step possible: a pending batch has not passed its gate
		wantReady := len(newInsts)
		if wantReady > a.Count {
			wantReady = a.Count
		}
		ok, err := c.awaitReady(ctx, desired, target, wantReady)
		if err != nil {
			return err
		}
		if !ok {
			gateFailures++
			c.logger.Log("warning", "health gate failed", "failures", gateFailures, "budget", c.cfg.GateRetryBudget)
			if gateFailures >= c.cfg.GateRetryBudget {
				return &FailedError{Reason: fmt.Sprintf("health gate failed %d consecutive times", gateFailures)}
			}
		} else {
			gateFailures = 0
		}
	}
}

// awaitReady polls until at least wantReady instances of the target
// image are ready, the batch timeout lapses (false, nil), or the
// plan is superseded or the context ends.
func (c *Controller) awaitReady(ctx context.Context, desired resource.DesiredState, target image.Ref, wantReady int) (bool, error) {
	deadline := time.Now().Add(c.cfg.BatchTimeout)
	for {
		if err := c.checkSuperseded(desired); err != nil {
			return false, err
		}
		live, err := c.observe(ctx)
		if err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil && live.ReadyWithImage(target) >= wantReady {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// observeFresh retries until it gets a snapshot that is not stale;
// step decisions are never taken on stale data.
func (c *Controller) observeFresh(ctx context.Context) (cluster.LiveState, error) {
	for {
		live, err := c.observe(ctx)
		if err == nil {
			return live, nil
		}
		if ctx.Err() != nil {
			return cluster.LiveState{}, ctx.Err()
		}
		c.logger.Log("warning", "observation not usable for rollout step, retrying", "err", err)
		select {
		case <-ctx.Done():
			return cluster.LiveState{}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func (c *Controller) checkSuperseded(desired resource.DesiredState) error {
	if current, ok := c.current(); ok && current.Revision.After(desired.Revision) {
		return ErrSuperseded
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
