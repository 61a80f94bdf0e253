package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/fluxcd/rollout/pkg/cluster"
	"github.com/fluxcd/rollout/pkg/cluster/local"
	"github.com/fluxcd/rollout/pkg/daemon"
	"github.com/fluxcd/rollout/pkg/event"
	httpdaemon "github.com/fluxcd/rollout/pkg/http/daemon"
	"github.com/fluxcd/rollout/pkg/observer"
	"github.com/fluxcd/rollout/pkg/policy"
	"github.com/fluxcd/rollout/pkg/publisher"
	"github.com/fluxcd/rollout/pkg/rollout"
	"github.com/fluxcd/rollout/pkg/status"
	"github.com/fluxcd/rollout/pkg/store"
)

var version = "unversioned"

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  rolloutd is a reconciliation daemon: it converges a runtime\n")
		fmt.Fprintf(os.Stderr, "  on published desired state, progressively.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	var (
		listenAddr         = fs.StringP("listen", "l", ":3030", "listen address for API clients")
		versionFlag        = fs.Bool("version", false, "output the version number and exit")
		syncInterval       = fs.Duration("sync-interval", 5*time.Minute, "apply desired state at least this often, even in the absence of publishes")
		syncTimeout        = fs.Duration("sync-timeout", time.Minute, "bound on one reconciliation cycle, excluding rollout execution")
		observeTimeout     = fs.Duration("observe-timeout", 10*time.Second, "bound on one live-state observation")
		observeMinInterval = fs.Duration("observe-min-interval", time.Second, "shortest allowed gap between live-state observations")
		maxSurge           = fs.Int("rollout-max-surge", 1, "instances allowed above the desired replica count during a rollout")
		maxUnavailable     = fs.Int("rollout-max-unavailable", 0, "ready instances allowed below the desired replica count during a rollout")
		batchTimeout       = fs.Duration("rollout-batch-timeout", 30*time.Second, "bound on the wait for one created batch to pass its health gate")
		rolloutTimeout     = fs.Duration("rollout-timeout", 10*time.Minute, "bound on a whole rollout run")
		gateRetries        = fs.Int("rollout-gate-retries", 3, "consecutive health-gate lapses tolerated before a rollout is declared failed")
		pollInterval       = fs.Duration("rollout-poll-interval", 250*time.Millisecond, "gap between live-state polls while a rollout waits on readiness")
		tagPattern         = fs.String("tag-pattern", "glob:*", "pattern admitted tags must match, e.g. 'glob:v*', 'semver:>=1.0', 'regexp:^rel-'")
		probeURL           = fs.String("probe-url", "", "base URL prefixed to instance probe paths; empty means instances are assumed healthy")
		eventHistory       = fs.Int("event-history", 100, "how many events to keep for the events API")
	)
	fs.Parse(os.Args)

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	// Logger component.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)

	// Tag admission pattern.
	pattern := policy.NewPattern(*tagPattern)
	if !pattern.Valid() {
		logger.Log("err", "invalid tag pattern", "pattern", *tagPattern)
		os.Exit(1)
	}

	// Runtime component.
	var runtime cluster.Runtime
	{
		logger := log.With(logger, "component", "runtime")
		opts := []local.Option{}
		if *probeURL != "" {
			logger.Log("probe", *probeURL)
			opts = append(opts, local.WithProber(&local.HTTPProber{
				BaseURL: *probeURL,
				Client:  &http.Client{Timeout: 5 * time.Second},
			}))
		} else {
			logger.Log("probe", "none")
		}
		runtime = local.NewCluster(opts...)
	}

	// Desired-state store and observer.
	desired := store.NewStore(log.With(logger, "component", "store"))
	obs := observer.New(runtime, log.With(logger, "component", "observer"), observer.Config{
		Timeout:     *observeTimeout,
		MinInterval: *observeMinInterval,
	})

	// Rollout controller.
	ctl := rollout.NewController(runtime, obs.Observe, desired.Current, log.With(logger, "component", "rollout"), rollout.Config{
		Bounds: rollout.Bounds{
			MaxSurge:       *maxSurge,
			MaxUnavailable: *maxUnavailable,
		},
		BatchTimeout:    *batchTimeout,
		OverallTimeout:  *rolloutTimeout,
		GateRetryBudget: *gateRetries,
		PollInterval:    *pollInterval,
	})

	// Daemon (business logic) domain.
	events := event.NewRing(*eventHistory)
	d := &daemon.Daemon{
		V:           version,
		Store:       desired,
		Observer:    obs,
		Runtime:     runtime,
		Rollout:     ctl,
		Publisher:   publisher.New(desired, pattern, log.With(logger, "component", "publisher"), events),
		Reporter:    status.NewReporter(status.NewStatusGauge()),
		EventWriter: events,
		EventReader: events,
		Logger:      log.With(logger, "component", "daemon"),
		LoopVars: &daemon.LoopVars{
			SyncInterval: *syncInterval,
			SyncTimeout:  *syncTimeout,
		},
	}

	// Mechanical stuff.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	// HTTP transport component.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", httpdaemon.NewHandler(d, httpdaemon.NewRouter()))
		logger.Log("addr", *listenAddr)
		errc <- http.ListenAndServe(*listenAddr, mux)
	}()

	// Reconciliation loop.
	shutdown := make(chan struct{})
	shutdownWg := &sync.WaitGroup{}
	shutdownWg.Add(1)
	go d.Loop(shutdown, shutdownWg, log.With(logger, "component", "sync-loop"))

	logger.Log("exit", <-errc)
	close(shutdown)
	shutdownWg.Wait()
}
