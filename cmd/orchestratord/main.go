// Command orchestratord is a thin demonstration binary wiring the
// Pipeline Orchestration Core's subsystems behind a Gin HTTP surface: it
// satisfies spec §6's external integration points (metrics scrape,
// SLO dashboard/alert-rule JSON, an event-stream WebSocket) without being
// a product API of its own — auth/OIDC, persistent plan storage, and the
// rest of §1's external collaborators are out of scope here too.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/bus"
	orchcontext "github.com/R3E-Network/pipeline-orchestrator/engine/context"
	"github.com/R3E-Network/pipeline-orchestrator/engine/context/redisadapter"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/engine/factory"
	"github.com/R3E-Network/pipeline-orchestrator/engine/graph"
	"github.com/R3E-Network/pipeline-orchestrator/engine/handlers"
	"github.com/R3E-Network/pipeline-orchestrator/engine/monitor"
	orchslo "github.com/R3E-Network/pipeline-orchestrator/engine/slo"
	"github.com/R3E-Network/pipeline-orchestrator/engine/stream"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/config"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

func main() {
	addr := flag.String("addr", getEnv("ORCHESTRATORD_ADDR", ":8080"), "HTTP listen address")
	configPath := flag.String("config", getEnv("ORCHESTRATORD_CONFIG", ""), "optional YAML config overlay path")
	redisURL := flag.String("redis-url", os.Getenv("ORCHESTRATORD_REDIS_URL"), "optional Redis URL; enables the durable context adapter")
	flag.Parse()

	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Component: "orchestratord"})
	log.Info("starting orchestratord")

	evt := events.NewBus()
	defer evt.Close()

	msgBus := bus.New(bus.Config{
		MaxQueueSize:    cfg.Bus.MaxQueueSize,
		DefaultTTL:      cfg.Bus.DefaultTTL,
		CleanupInterval: cfg.Bus.CleanupInterval,
		DefaultMaxRetry: cfg.Bus.DefaultMaxRetry,
		PerAgentRPS:     cfg.Bus.PerAgentRPS,
		PerAgentBurst:   cfg.Bus.PerAgentBurst,
	}, log, evt)
	defer msgBus.Shutdown()

	ctxStore := buildContextStore(*redisURL, cfg, log, evt)

	recorder := newMetricsRecorder()
	sloMonitor := orchslo.New(cfg.SLO, recorder.Sample, log, evt)
	sloMonitor.RegisterDefaults()
	recorder.seedDefaults()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	if err := sloMonitor.Start(runCtx); err != nil {
		log.WithError(err).Fatal("failed to start SLO monitor")
	}

	pipelineMonitor := monitor.New(log, evt)
	hub := stream.NewHub(evt, log)
	defer hub.Close()

	handlerRegistry := demoHandlerRegistry(log)

	pipelineFactory := factory.New()

	deps := &serverDeps{
		cfg:             cfg,
		log:             log,
		evt:             evt,
		bus:             msgBus,
		ctxStore:        ctxStore,
		sloMonitor:      sloMonitor,
		pipelineMonitor: pipelineMonitor,
		hub:             hub,
		factory:         pipelineFactory,
		handlers:        handlerRegistry,
		recorder:        recorder,
	}

	router := newRouter(deps)
	srv := &http.Server{Addr: *addr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()
	log.WithField("addr", *addr).Info("orchestratord listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down orchestratord")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	sloMonitor.Stop()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildContextStore wires the in-memory Shared Context Store by default,
// or the Redis-backed adapter (spec §6 "a separate durable store can back
// the context via an adapter implementing the same operation contract")
// when a Redis URL is supplied.
func buildContextStore(redisURL string, cfg config.Config, log *logging.Logger, evt *events.Bus) orchcontext.ContextStore {
	if redisURL == "" {
		return orchcontext.New(orchcontext.Config{
			MaxEntries:        cfg.Context.MaxEntries,
			CleanupInterval:   cfg.Context.CleanupInterval,
			MaxScanIterations: cfg.Context.MaxScanIterations,
			VersioningEnabled: cfg.Context.VersioningEnabled,
		}, log, evt)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Fatal("invalid redis url")
	}
	client := redis.NewClient(opts)
	return redisadapter.New(client, redisadapter.Config{
		MaxEntries:        cfg.Context.MaxEntries,
		MaxScanIterations: cfg.Context.MaxScanIterations,
	}, log, evt)
}

// demoToolRegistry registers one named tool, "run_test_suite", so template
// nodes (engine/factory) that call it produce observable output; every
// other operation falls through to the "Simulated execution of <op>"
// default (spec §4.F).
func demoToolRegistry() *handlers.Registry {
	r := handlers.NewRegistry()
	r.Register("run_test_suite", func(ctx context.Context, taskConfig map[string]any) (any, error) {
		return map[string]any{"status": "completed", "passed": 8, "total": 8}, nil
	})
	return r
}

// demoHandlerRegistry wires all five node-type handlers (engine/handlers)
// against the demonstration tool registry.
func demoHandlerRegistry(log *logging.Logger) graph.HandlerRegistry {
	toolRegistry := demoToolRegistry()
	return graph.HandlerRegistry{
		pipeline.NodeTask:      handlers.Task(toolRegistry),
		pipeline.NodeParallel:  handlers.Parallel(toolRegistry),
		pipeline.NodeCondition: handlers.Condition(log),
		pipeline.NodeMerge:     handlers.Merge,
		pipeline.NodeLoop:      handlers.Loop(toolRegistry, log),
	}
}
