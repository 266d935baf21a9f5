// Command graphcored runs the graph-inventory core engine: the CLI
// execution HTTP surface, the workflow engine driving collect/cleanup/
// metrics runs, the worker-task queue, and the subscription registry
// and message bus that tie them together. Structure follows the
// teacher's main.go: JSON slog handler, env-driven config, gorilla/mux
// + gorilla/handlers CORS, and signal-driven graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/invgraph/graphcore/pkg/bus"
	"github.com/invgraph/graphcore/pkg/clock"
	"github.com/invgraph/graphcore/pkg/config"
	"github.com/invgraph/graphcore/pkg/graph/deferred"
	"github.com/invgraph/graphcore/pkg/graphstore"
	"github.com/invgraph/graphcore/pkg/httpapi"
	"github.com/invgraph/graphcore/pkg/metrics"
	"github.com/invgraph/graphcore/pkg/rwlock"
	"github.com/invgraph/graphcore/pkg/store"
	"github.com/invgraph/graphcore/pkg/subscription"
	"github.com/invgraph/graphcore/pkg/worker"
	"github.com/invgraph/graphcore/pkg/workflow"
)

// coreSubscriberID identifies this process as the sole subscriber of
// the merge_outer_edges action — the deferred-edge resolver runs
// in-process rather than as an external collector worker.
const coreSubscriberID = "graphcore-core"

func main() {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(logHandler))

	if err := run(); err != nil {
		slog.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	configFile := os.Getenv("GRAPHCORE_CONFIG_FILE")
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	lock := rwlock.New()
	// No resource model is registered at startup: model.New() with zero
	// ComplexKinds would reject every ingested kind as unknown (Builder
	// only skips validation when passed a nil *model.Model). Until kind
	// definitions are loaded from configuration, ingestion validates
	// graph shape only, not payload schema.
	graphs := graphstore.New(lock, nil)
	graphs.SetMetrics(m)

	b, err := newBus(cfg)
	if err != nil {
		return err
	}

	subscriberStore, instanceStore, err := newDurableStores(ctx, cfg)
	if err != nil {
		return err
	}

	subs := subscription.New(subscriberStore, b)
	engine := workflow.NewEngine(descriptors(cfg), instanceStore, subs, b, clock.Real)
	engine.SetMetrics(m)

	deferredRegistry := newDeferredRegistry(ctx, cfg)
	if err := subs.AddSubscription(ctx, coreSubscriberID, "merge_outer_edges", true, cfg.TaskTimeout); err != nil {
		return err
	}
	b.SubscribeActions("merge_outer_edges", mergeOuterEdgesHandler(graphs, deferredRegistry, b))
	for _, wf := range descriptors(cfg) {
		for _, step := range wf.Steps {
			if step.Kind != workflow.PerformAction {
				continue
			}
			b.SubscribeActionDone(step.Action, func(ctx context.Context, d bus.ActionDone) {
				if _, err := engine.HandleActionDone(ctx, d.WorkflowID, d.SubscriberID); err != nil {
					slog.Error("handle action done failed", "workflowId", d.WorkflowID, "error", err)
				}
			})
		}
	}

	if err := engine.Recover(ctx); err != nil {
		slog.Error("workflow recovery failed", "error", err)
	}

	taskQueue := worker.New(clock.Real, cfg.MaxQueuedTasks, cfg.TaskTimeout, cfg.MaxTaskAttempts)
	taskQueue.SetMetrics(m)
	go expireDeadlinesLoop(ctx, taskQueue)

	if depthCache := newQueueDepthCache(cfg); depthCache != nil {
		go publishQueueStatsLoop(ctx, taskQueue, depthCache)
	}

	apiService := httpapi.NewService(graphs, graphs, lock)

	mainRouter := mux.NewRouter()
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	apiService.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(mainRouter)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: corsHandler,
	}

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	serverErrors := make(chan error, 2)
	go func() {
		slog.Info("starting http server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	go func() {
		slog.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		return err

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("could not stop http server gracefully", "error", err)
			srv.Close()
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			metricsSrv.Close()
		}
	}
	return nil
}

// newDurableStores connects to Postgres for Subscriber and
// workflow.Instance persistence when DatabaseURI is configured,
// falling back to in-memory stores otherwise (development, tests).
func newDurableStores(ctx context.Context, cfg config.Config) (store.EntityStore[subscription.Subscriber], store.EntityStore[workflow.Instance], error) {
	if cfg.DatabaseURI == "" {
		return store.NewInMemory[subscription.Subscriber](), store.NewInMemory[workflow.Instance](), nil
	}

	pool, err := store.Connect(ctx, store.DefaultPoolConfig(cfg.DatabaseURI))
	if err != nil {
		return nil, nil, err
	}

	subscriberStore, err := store.NewPostgres[subscription.Subscriber](pool, "subscribers")
	if err != nil {
		return nil, nil, err
	}
	instanceStore, err := store.NewPostgres[workflow.Instance](pool, "workflow_instances")
	if err != nil {
		return nil, nil, err
	}
	return subscriberStore, instanceStore, nil
}

// newDeferredRegistry builds the deferred-edge registry backing the
// merge_outer_edges step, durable under the same Postgres pool
// newDurableStores uses when DatabaseURI is configured.
func newDeferredRegistry(ctx context.Context, cfg config.Config) *deferred.Registry {
	if cfg.DatabaseURI == "" {
		return deferred.NewRegistry(store.NewInMemory[deferred.Entry](), store.NewInMemory[[]deferred.ResolvedEdge]())
	}

	pool, err := store.Connect(ctx, store.DefaultPoolConfig(cfg.DatabaseURI))
	if err != nil {
		slog.Error("deferred-edge registry falling back to in-memory storage", "error", err)
		return deferred.NewRegistry(store.NewInMemory[deferred.Entry](), store.NewInMemory[[]deferred.ResolvedEdge]())
	}
	entries, err := store.NewPostgres[deferred.Entry](pool, "deferred_edges")
	if err != nil {
		slog.Error("deferred-edge registry falling back to in-memory storage", "error", err)
		return deferred.NewRegistry(store.NewInMemory[deferred.Entry](), store.NewInMemory[[]deferred.ResolvedEdge]())
	}
	snapshots, err := store.NewPostgres[[]deferred.ResolvedEdge](pool, "deferred_edge_snapshots")
	if err != nil {
		slog.Error("deferred-edge registry falling back to in-memory storage", "error", err)
		return deferred.NewRegistry(store.NewInMemory[deferred.Entry](), store.NewInMemory[[]deferred.ResolvedEdge]())
	}
	return deferred.NewRegistry(entries, snapshots)
}

// mergeOuterEdgesHandler resolves and applies every pending
// deferred-edge announcement against the graph store, then reports
// completion back through the bus so the collect workflow's
// merge_outer_edges step can advance.
func mergeOuterEdgesHandler(graphs *graphstore.Store, reg *deferred.Registry, b bus.Bus) bus.ActionHandler {
	return func(ctx context.Context, a bus.Action) {
		done := bus.ActionDone{
			Type:         a.Type,
			WorkflowID:   a.WorkflowID,
			StepName:     a.StepName,
			SubscriberID: coreSubscriberID,
		}
		if err := graphs.ApplyDeferredEdges(ctx, reg); err != nil {
			slog.Error("apply deferred edges failed", "workflowId", a.WorkflowID, "error", err)
			done.Error = err.Error()
		}
		if err := b.PublishActionDone(ctx, done); err != nil {
			slog.Error("publish merge_outer_edges completion failed", "workflowId", a.WorkflowID, "error", err)
		}
	}
}

// newBus returns a NATS-backed bus when a NATS URL is configured,
// falling back to the in-process default otherwise.
func newBus(cfg config.Config) (bus.Bus, error) {
	if cfg.NATSURL == "" {
		return bus.New(), nil
	}
	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	return bus.NewNATSBus(conn), nil
}

// descriptors builds the fixed set of workflow kinds: collect,
// cleanup, metrics — expressed as WorkflowDescriptor values at
// startup rather than discovered at runtime.
func descriptors(cfg config.Config) []workflow.WorkflowDescriptor {
	return []workflow.WorkflowDescriptor{
		{
			Name: "collect",
			Steps: []workflow.Step{
				{Name: "workflow_start", Kind: workflow.EmitEvent, Action: "workflow_start"},
				{Name: "collect", Kind: workflow.PerformAction, Action: "start_collect", Timeout: cfg.TaskTimeout, FailurePolicy: workflow.FailPolicy},
				{Name: "merge_outer_edges", Kind: workflow.PerformAction, Action: "merge_outer_edges", Timeout: cfg.TaskTimeout, FailurePolicy: workflow.ContinuePolicy},
				{Name: "workflow_end", Kind: workflow.EmitEvent, Action: "workflow_end"},
			},
		},
		{
			Name: "cleanup",
			Steps: []workflow.Step{
				{Name: "workflow_start", Kind: workflow.EmitEvent, Action: "workflow_start"},
				{Name: "cleanup", Kind: workflow.PerformAction, Action: "cleanup_plan", Timeout: cfg.TaskTimeout, FailurePolicy: workflow.FailPolicy},
				{Name: "workflow_end", Kind: workflow.EmitEvent, Action: "workflow_end"},
			},
		},
		{
			Name: "metrics",
			Steps: []workflow.Step{
				{Name: "workflow_start", Kind: workflow.EmitEvent, Action: "workflow_start"},
				{Name: "metrics", Kind: workflow.PerformAction, Action: "generate_metrics", Timeout: cfg.TaskTimeout, FailurePolicy: workflow.ContinuePolicy},
				{Name: "workflow_end", Kind: workflow.EmitEvent, Action: "workflow_end"},
			},
		},
	}
}

func expireDeadlinesLoop(ctx context.Context, q *worker.Queue) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.ExpireDeadlines(ctx)
		}
	}
}

// newQueueDepthCache connects to Redis for cross-process queue-status
// visibility when RedisAddr is configured; returns nil (wiring
// disabled) otherwise, since a single-process deployment can read
// worker.Queue's counts directly.
func newQueueDepthCache(cfg config.Config) *store.QueueDepthCache {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return store.NewQueueDepthCache(client, "graphcore")
}

// publishQueueStatsLoop mirrors worker.Queue's in-memory depth/in-flight
// counts into Redis every 5 seconds, so a horizontally-scaled HTTP tier
// can answer status queries without reaching into this process.
func publishQueueStatsLoop(ctx context.Context, q *worker.Queue, cache *store.QueueDepthCache) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for taskType, stats := range q.Snapshot() {
				if err := cache.SetQueueDepth(ctx, taskType, stats.Depth); err != nil {
					slog.Warn("publish queue depth failed", "taskType", taskType, "error", err)
				}
				if err := cache.SetInFlight(ctx, taskType, stats.InFlight); err != nil {
					slog.Warn("publish in-flight count failed", "taskType", taskType, "error", err)
				}
			}
		}
	}
}
