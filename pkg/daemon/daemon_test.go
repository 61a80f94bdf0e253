package daemon

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/rollout/pkg/cluster"
	"github.com/fluxcd/rollout/pkg/cluster/local"
	"github.com/fluxcd/rollout/pkg/event"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/observer"
	"github.com/fluxcd/rollout/pkg/publisher"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/rollout"
	"github.com/fluxcd/rollout/pkg/status"
	"github.com/fluxcd/rollout/pkg/store"
)

// tracking wraps the local runtime and remembers every image a
// scale-up was applied for.
type tracking struct {
	*local.Cluster

	mu     stdsync.Mutex
	images []string
}

func (r *tracking) Apply(ctx context.Context, action cluster.Action) error {
	if up, ok := action.(cluster.ScaleUp); ok {
		r.mu.Lock()
		r.images = append(r.images, up.Spec.Image.String())
		r.mu.Unlock()
	}
	return r.Cluster.Apply(ctx, action)
}

func (r *tracking) appliedImages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.images))
	copy(out, r.images)
	return out
}

func testDaemon(t *testing.T, prober local.Prober) (*Daemon, *tracking) {
	logger := log.NewNopLogger()
	opts := []local.Option{}
	if prober != nil {
		opts = append(opts, local.WithProber(prober))
	}
	runtime := &tracking{Cluster: local.NewCluster(opts...)}

	s := store.NewStore(logger)
	obs := observer.New(runtime, logger, observer.Config{Timeout: time.Second})
	ctl := rollout.NewController(runtime, obs.Observe, s.Current, logger, rollout.Config{
		Bounds:          rollout.Bounds{MaxSurge: 1, MaxUnavailable: 0},
		BatchTimeout:    50 * time.Millisecond,
		OverallTimeout:  5 * time.Second,
		GateRetryBudget: 2,
		PollInterval:    time.Millisecond,
	})
	events := event.NewRing(50)

	return &Daemon{
		V:           "test",
		Store:       s,
		Observer:    obs,
		Runtime:     runtime,
		Rollout:     ctl,
		Publisher:   publisher.New(s, nil, logger, events),
		Reporter:    status.NewReporter(nil),
		EventWriter: events,
		EventReader: events,
		Logger:      logger,
		LoopVars: &LoopVars{
			SyncInterval: time.Hour, // ticks are driven by the tests
			SyncTimeout:  5 * time.Second,
		},
	}, runtime
}

func publish(t *testing.T, d *Daemon, ref string, replicas int) resource.Revision {
	img, err := image.ParseRef(ref)
	require.NoError(t, err)
	rev, err := d.Store.Publish(resource.Spec{Image: img, Replicas: replicas})
	require.NoError(t, err)
	return rev
}

func TestSyncWithNothingPublished(t *testing.T) {
	d, runtime := testDaemon(t, nil)
	require.NoError(t, d.Sync(context.Background()))
	assert.Equal(t, 0, runtime.Len())
}

func TestSyncConverges(t *testing.T) {
	d, runtime := testDaemon(t, nil)
	ctx := context.Background()

	rev := publish(t, d, "app:v1", 2)
	require.NoError(t, d.Sync(ctx))

	assert.Equal(t, 2, runtime.Len())
	summary, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.StatusSynced, summary.Status)
	assert.Equal(t, rev, summary.Revision)
}

func TestSyncIsIdempotent(t *testing.T) {
	d, runtime := testDaemon(t, nil)
	ctx := context.Background()

	publish(t, d, "app:v1", 2)
	require.NoError(t, d.Sync(ctx))
	applied := len(runtime.appliedImages())

	// a second tick against unchanged state applies nothing
	require.NoError(t, d.Sync(ctx))
	assert.Equal(t, applied, len(runtime.appliedImages()))
	summary, _ := d.Status(ctx)
	assert.Equal(t, status.StatusSynced, summary.Status)
}

func TestLastPublishWins(t *testing.T) {
	d, runtime := testDaemon(t, nil)
	ctx := context.Background()

	// two publishes land before any reconciliation happens
	publish(t, d, "app:v1", 2)
	rev2 := publish(t, d, "app:v2", 2)

	require.NoError(t, d.Sync(ctx))

	// convergence went to the later publish only; the earlier image
	// was never applied
	for _, img := range runtime.appliedImages() {
		assert.Equal(t, "app:v2", img)
	}
	live, err := runtime.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, live.ReadyWithImage(mustRef(t, "app:v2")))

	summary, _ := d.Status(ctx)
	assert.Equal(t, status.StatusSynced, summary.Status)
	assert.Equal(t, rev2, summary.Revision)
}

func TestDegradedHaltsUntilNewPublish(t *testing.T) {
	// v2's readiness gate never passes
	prober := local.ProberFunc(func(_ context.Context, spec cluster.InstanceSpec, _ cluster.InstanceID) bool {
		return spec.Image.Tag != "v2"
	})
	d, runtime := testDaemon(t, prober)
	ctx := context.Background()

	publish(t, d, "app:v1", 2)
	require.NoError(t, d.Sync(ctx))

	publish(t, d, "app:v2", 2)
	require.NoError(t, d.Sync(ctx))
	summary, _ := d.Status(ctx)
	require.Equal(t, status.StatusDegraded, summary.Status)
	assert.Contains(t, summary.Reason, "health gate")

	// further ticks hold position: no new instances are created and
	// the v1 instances are untouched
	applied := len(runtime.appliedImages())
	require.NoError(t, d.Sync(ctx))
	assert.Equal(t, applied, len(runtime.appliedImages()))
	live, err := runtime.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, live.ReadyWithImage(mustRef(t, "app:v1")))

	// a newer publish releases the halt
	publish(t, d, "app:v3", 2)
	require.NoError(t, d.Sync(ctx))
	summary, _ = d.Status(ctx)
	assert.Equal(t, status.StatusSynced, summary.Status)
	live, err = runtime.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, live.ReadyWithImage(mustRef(t, "app:v3")))
}

func TestSyncTimeoutDoesNotBoundRollout(t *testing.T) {
	// instances only pass their readiness gate well after the sync
	// timeout has lapsed; the rollout's own bounds are generous
	readyAt := time.Now().Add(60 * time.Millisecond)
	prober := local.ProberFunc(func(context.Context, cluster.InstanceSpec, cluster.InstanceID) bool {
		return time.Now().After(readyAt)
	})
	d, runtime := testDaemon(t, prober)
	d.SyncTimeout = 10 * time.Millisecond
	ctx := context.Background()

	publish(t, d, "app:v1", 2)
	require.NoError(t, d.Sync(ctx))

	summary, _ := d.Status(ctx)
	assert.Equal(t, status.StatusSynced, summary.Status)
	live, err := runtime.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, live.ReadyWithImage(mustRef(t, "app:v1")))
}

func TestRolloutEventsRecorded(t *testing.T) {
	d, _ := testDaemon(t, nil)
	ctx := context.Background()

	publish(t, d, "app:v1", 1)
	require.NoError(t, d.Sync(ctx))

	events, err := d.Events(ctx)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, event.EventRollout)
	assert.Contains(t, types, event.EventRolloutComplete)
}

func TestLoopSyncsOnPublish(t *testing.T) {
	d, runtime := testDaemon(t, nil)

	stop := make(chan struct{})
	wg := &stdsync.WaitGroup{}
	wg.Add(1)
	go d.Loop(stop, wg, log.NewNopLogger())
	defer func() {
		close(stop)
		wg.Wait()
	}()

	publish(t, d, "app:v1", 2)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.Len() == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, runtime.Len())
}

func mustRef(t *testing.T, s string) image.Ref {
	img, err := image.ParseRef(s)
	require.NoError(t, err)
	return img
}
