// Package main is the entry point for the Gatewarden governance gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatewarden/gatewarden/internal/api"
	"github.com/gatewarden/gatewarden/internal/cache"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/gateway"
	"github.com/gatewarden/gatewarden/internal/ledger"
	"github.com/gatewarden/gatewarden/internal/pii"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/pricing"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/store"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting gatewarden", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := newStore(cfg.Store)
	if err != nil {
		logger.Error("failed to connect shared store", "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	logger.Info("shared store ready", "backend", cfg.Store.Backend)

	policies, cleanup, err := newPolicyProvider(ctx, cfg.Policy, logger)
	if err != nil {
		logger.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	limiter := ratelimit.New(backend, cfg.FailOpen.RateLimits, logger)
	led := ledger.New(backend, cfg.FailOpen.DailyCap, logger)

	pipeline := gateway.New(gateway.Config{
		Policies: policies,
		Scanner:  pii.NewScanner(),
		Limiter:  limiter,
		Ledger:   led,
		Cache:    cache.New(backend, logger),
		Pricing:  pricing.NewTable(pricing.DefaultPricing),
		Upstream: gateway.NewHTTPUpstream(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout),
		Emitter: gateway.MultiEmitter{
			gateway.SlogEmitter{Logger: logger},
			gateway.PrometheusEmitter{},
		},
		Logger: logger,
	})

	handler := api.NewHandler(pipeline, limiter, led, version, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.Backend == "redis" {
		return store.NewRedis(cfg.Redis)
	}
	return store.NewMemory(), nil
}

// newPolicyProvider wires either the watching loader or the built-in
// default policy. The returned cleanup is safe to call once.
func newPolicyProvider(ctx context.Context, cfg config.PolicyConfig, logger *slog.Logger) (policy.Provider, func(), error) {
	if cfg.Dir == "" {
		logger.Info("no policy directory configured, using the default policy")
		return &policy.StaticProvider{}, func() {}, nil
	}

	loader, err := policy.NewLoader(cfg.Dir, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Watch {
		if err := loader.Watch(ctx); err != nil {
			logger.Warn("policy hot-reload disabled", "error", err)
		}
	}
	logger.Info("policies loaded", "dir", cfg.Dir, "active", loader.Active().Name)
	return loader, func() { _ = loader.Close() }, nil
}
