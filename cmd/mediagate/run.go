package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/mediagate/mediagate/internal/anilist"
	"github.com/mediagate/mediagate/internal/app"
	"github.com/mediagate/mediagate/internal/cache"
	"github.com/mediagate/mediagate/internal/config"
	"github.com/mediagate/mediagate/internal/server"
	"github.com/mediagate/mediagate/internal/telemetry"
	"github.com/mediagate/mediagate/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.Log))

	slog.Info("starting mediagate", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, "mediagate", cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("tracer shutdown", "error", err)
			}
		}()
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Cache
	store, err := cache.Open(cache.Options{
		Backend: cfg.Cache.Backend,
		URL:     cfg.Cache.URL,
		Timeout: cfg.Cache.Timeout,
		MaxSize: cfg.Cache.MaxSize,
		MaxTTL:  cfg.Cache.MaxTTL,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Cache.Timeout)
	if err := store.Ping(pingCtx); err != nil {
		// Lookups degrade to upstream-only until the cache comes back.
		slog.Warn("cache not reachable at startup", "backend", cfg.Cache.Backend, "error", err)
	}
	cancel()

	// Upstream
	runner := worker.NewRunner()
	var resolver *dnscache.Resolver
	if cfg.Upstream.DNSCache {
		resolver = &dnscache.Resolver{}
		if cfg.Upstream.DNSRefresh > 0 {
			runner.Add(worker.NewFunc("dns_refresh", anilist.RefreshDNS(resolver, cfg.Upstream.DNSRefresh)))
		}
	}
	httpClient := &http.Client{Transport: anilist.NewTransport(resolver)}
	queries := anilist.New(cfg.Upstream.Endpoint, httpClient, cfg.Upstream.Timeout)

	// Wire services
	mediaSvc := app.NewMediaService(queries, store, metrics, app.MediaOptions{
		DefaultTTL:     cfg.Cache.DefaultTTL,
		CacheTimeout:   cfg.Cache.Timeout,
		CoalesceMisses: cfg.Cache.CoalesceMisses,
	})
	relationSvc := app.NewRelationService(queries, metrics)

	deps := server.Deps{
		Media:      mediaSvc,
		Relations:  relationSvc,
		ReadyCheck: store.Ping,
		Metrics:    metrics,
	}

	// Metrics get their own listener unless no address is configured.
	if metricsHandler != nil {
		if addr := cfg.Telemetry.Metrics.Addr; addr != "" {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", metricsHandler)
			runner.Add(worker.NewHTTPServer("metrics", &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
			}, cfg.Server.ShutdownTimeout))
		} else {
			deps.MetricsHandler = metricsHandler
		}
	}

	runner.Add(worker.NewHTTPServer("api", &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout))

	slog.Info("mediagate ready",
		"addr", cfg.Server.Addr,
		"upstream", cfg.Upstream.Endpoint,
		"cache", cfg.Cache.Backend,
	)

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	slog.Info("mediagate stopped")
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
