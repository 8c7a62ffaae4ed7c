// Command tier1 runs the Sinfonia registry-side control plane: cloudlet
// ingest, carbon-aware matching, dispatch, and the experiment-clock
// broadcaster.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/dispatch"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/match"
	"github.com/cmusatyalab/sinfonia/internal/recipe"
	"github.com/cmusatyalab/sinfonia/internal/registry"
	"github.com/cmusatyalab/sinfonia/internal/scheduler"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/health"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/metrics"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/tracing"
	"github.com/cmusatyalab/sinfonia/internal/tier1"
)

func main() {
	var (
		configPath  string
		showVersion bool
		metricsAddr string
		healthAddr  string
	)
	flag.StringVar(&configPath, "config", "", "unused placeholder; configuration is environment-driven (see SINFONIA_* / CLOUDLET_EXPIRY_SECONDS / EXPERIMENT_*)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&metricsAddr, "metrics", "", "expose /metrics on address (e.g. :9090); requires PROMETHEUS=1")
	flag.StringVar(&healthAddr, "health", "", "expose /healthz on address (e.g. :9091)")
	flag.Parse()
	_ = configPath

	if showVersion {
		fmt.Println("sinfonia tier1")
		return
	}

	cfg, err := tier1.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	reg := registry.New(cfg.RegistryConfig, logger)

	if cfg.CloudletsSeedPath != "" {
		seeded, err := tier1.LoadCloudletsSeed(cfg.CloudletsSeedPath)
		if err != nil {
			log.Fatalf("load cloudlets seed: %v", err)
		}
		for _, c := range seeded {
			reg.Upsert(c)
		}
		logger.InfoCtx(ctx, "preseeded cloudlets from config", "count", len(seeded))
	}

	catalog, err := recipe.NewDirCatalog(cfg.RecipesDir, logger)
	if err != nil {
		log.Fatalf("load recipe catalog: %v", err)
	}
	if cfg.RecipesIndexURL != "" {
		mirrored, err := recipe.FetchMirror(recipe.MirrorConfig{IndexURL: cfg.RecipesIndexURL})
		if err != nil {
			logger.WarnCtx(ctx, "recipe mirror fetch failed", "error", err.Error())
		} else {
			catalog.Merge(mirrored)
		}
	}
	go func() {
		if err := catalog.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.WarnCtx(ctx, "recipe catalog watch stopped", "error", err.Error())
		}
	}()

	pipeline, err := match.Build(cfg.Matchers, cfg.MatchConfig)
	if err != nil {
		log.Fatalf("build match pipeline: %v", err)
	}

	tracer := tracing.New("sinfonia-tier1")
	provider := metrics.Select(metrics.Backend(cfg.MetricsBackend), "sinfonia-tier1")

	deployer := dispatch.NewHTTPDeployer(nil)
	dispatcher := dispatch.New(deployer, tracer, logger)

	var history *tier1.HistoryWriter
	if cfg.HistoryLogDir != "" {
		history, err = tier1.NewHistoryWriter(cfg.HistoryLogDir)
		if err != nil {
			log.Fatalf("open carbon history writer: %v", err)
		}
	}

	srv := tier1.NewServer(reg, pipeline, dispatcher, catalog, history, cfg.RotateHistoryOnDeploy, logger, provider)

	broadcaster := tier1.NewBroadcaster(reg, nil, tracer, logger, cfg.InitialCarbonTraceTimestamp, cfg.ExperimentTickRateSeconds, cfg.AdvanceBeforeBroadcast)

	go reg.Run(ctx)
	runner := scheduler.New(logger, scheduler.Job{
		Name:     "broadcast_carbon_trace_timestamp",
		Interval: cfg.BroadcastInterval(),
		Run: func(ctx context.Context) error {
			broadcaster.Tick(ctx)
			return nil
		},
	})
	go runner.Start(ctx)

	evaluator := health.NewEvaluator(30*time.Second, health.ProbeFunc(func(context.Context) health.ProbeResult {
		return health.Healthy("registry")
	}))

	if healthAddr != "" {
		go serveHealth(ctx, healthAddr, evaluator)
	}
	if metricsAddr != "" {
		if p, ok := provider.(*metrics.PrometheusProvider); ok {
			go serveMetrics(ctx, metricsAddr, p)
		} else {
			logger.WarnCtx(ctx, "metrics address set but PROMETHEUS backend not enabled; skipping", "addr", metricsAddr)
		}
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.InfoCtx(ctx, "tier1 listening", "addr", cfg.ListenAddr, "matchers", cfg.Matchers)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve: %v", err)
	}
}

func serveHealth(ctx context.Context, addr string, evaluator *health.Evaluator) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := evaluator.Evaluate(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("health endpoint listening on %s", addr)
	_ = srv.ListenAndServe()
}

func serveMetrics(ctx context.Context, addr string, p *metrics.PrometheusProvider) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("metrics listening on %s", addr)
	_ = srv.ListenAndServe()
}
