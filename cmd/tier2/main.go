// Command tier2 runs a Sinfonia cloudlet: the cluster adapter, the
// deploy/carbon request surface, and the periodic report-to-tier1 loop.
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

	"github.com/cmusatyalab/sinfonia/internal/carbon"
	"github.com/cmusatyalab/sinfonia/internal/cluster"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/recipe"
	"github.com/cmusatyalab/sinfonia/internal/scheduler"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/health"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/metrics"
	"github.com/cmusatyalab/sinfonia/internal/tier2"
)

func main() {
	var (
		showVersion bool
		metricsAddr string
		healthAddr  string
		recipesDir  string
	)
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&metricsAddr, "metrics", "", "expose /metrics on address (e.g. :9090); requires PROMETHEUS=1")
	flag.StringVar(&healthAddr, "health", "", "expose /healthz on address (e.g. :9091)")
	flag.StringVar(&recipesDir, "recipes", "RECIPES", "local recipe descriptor directory (in-cluster adapter only)")
	flag.Parse()

	if showVersion {
		fmt.Println("sinfonia tier2")
		return
	}

	cfg, err := tier2.FromEnv()
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

	catalog, err := recipe.NewDirCatalog(recipesDir, logger)
	if err != nil {
		log.Fatalf("load recipe catalog: %v", err)
	}

	adapter := cluster.NewMemoryAdapter(cluster.MemoryConfig{InactivitySeconds: cfg.InactivitySeconds}, catalog, model.Resources(nil), logger)

	var trace *carbon.Trace
	if cfg.TraceGithubRepoURL != "" && cfg.Zone != "" {
		trace, err = carbon.Fetch(ctx, nil, cfg.Zone, cfg.TraceGithubRepoURL)
		if err != nil {
			logger.WarnCtx(ctx, "carbon trace fetch failed, carbon reporting disabled", "error", err.Error())
		}
	}

	var carbonReporter *carbon.Reporter
	if trace != nil {
		sampler := carbon.NewSampler(cfg.PowerMeasureMethod, cfg.RAPLDomainsPath, cfg.ObelixBaseURL, cfg.ObelixNodeName)
		carbonReporter = carbon.NewReporter(trace, sampler, logger)
	}

	reporter := tier2.NewReporter(adapter, carbonReporter, nil, logger, cfg.UUID, cfg.TIER2URL, []model.LatLon{cfg.Location}, cfg.Tier1URLs, cfg.ReportIntervalSeconds)

	provider := metrics.Select(metrics.Backend(cfg.MetricsBackend), "sinfonia-tier2")
	srv := tier2.NewServer(adapter, reporter, logger, provider)

	if cfg.ReportingEnabled() {
		runner := scheduler.New(logger, scheduler.Job{
			Name:     "report_to_tier1",
			Interval: cfg.ReportInterval(),
			Run:      reporter.Tick,
		})
		go runner.Start(ctx)
	} else {
		logger.WarnCtx(ctx, "reporting loop not scheduled: TIER1_URLS or TIER2_URL unset")
	}

	runnerExpire := scheduler.New(logger, scheduler.Job{
		Name:     "expire_inactive_deployments",
		Interval: time.Duration(cfg.InactivitySeconds) * time.Second / 4,
		Run: func(ctx context.Context) error {
			n, err := adapter.ExpireInactive(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.InfoCtx(ctx, "expired inactive deployments", "count", n)
			}
			return nil
		},
	})
	go runnerExpire.Start(ctx)

	evaluator := health.NewEvaluator(30*time.Second, health.ProbeFunc(func(context.Context) health.ProbeResult {
		return health.Healthy("cluster")
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

	logger.InfoCtx(ctx, "tier2 listening", "addr", cfg.ListenAddr, "uuid", cfg.UUID)
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
