// Package main is the entrypoint for the ticket clustering dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/cache"
	"github.com/hellof20/mihoyo-cs-tickets/internal/catalog"
	"github.com/hellof20/mihoyo-cs-tickets/internal/config"
	"github.com/hellof20/mihoyo-cs-tickets/internal/dashboard"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/logger"
	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("dashboard failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg := config.Load()
	log := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.ValidateDashboard(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Info("config loaded", "env", cfg.Env, "job_service", cfg.JobService.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Build the dashboard
	handler, closer, err := buildHandler(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closer.Close()

	// 3. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Dashboard.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dashboard listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("dashboard stopped gracefully")
	return nil
}

// buildHandler wires the dashboard from cfg. The returned closer releases
// the rate limit counter store.
func buildHandler(ctx context.Context, cfg *config.Config, log *slog.Logger) (http.Handler, io.Closer, error) {
	cat, err := catalog.Load(cfg.Dashboard.CatalogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}

	counters, err := newCounters(ctx, cfg.Redis, log)
	if err != nil {
		return nil, nil, err
	}

	client := jobsvc.NewHTTPClient(cfg.JobService.BaseURL,
		jobsvc.WithTimeout(cfg.JobService.Timeout),
		jobsvc.WithRateLimit(cfg.JobService.RateLimit),
		jobsvc.WithLogger(log),
	)

	s, err := dashboard.New(dashboard.Dependencies{
		Client:          client,
		Cache:           querycache.New(querycache.WithGCTime(cfg.Dashboard.QueryCacheGC), querycache.WithLogger(log)),
		Catalog:         cat,
		Counters:        counters,
		SubmitRateLimit: cfg.Dashboard.SubmitRateLimit,
		Logger:          log,
	})
	if err != nil {
		counters.Close()
		return nil, nil, fmt.Errorf("create dashboard: %w", err)
	}
	return s.Routes(), counters, nil
}

// newCounters returns the Redis counter store when REDIS_URL is set and an
// in-process one otherwise.
func newCounters(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (cache.Cache, error) {
	if cfg.URL == "" {
		log.Info("REDIS_URL not set, counting submissions in memory")
		return cache.NewMemoryCache(), nil
	}

	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("redis connected")
	return rc, nil
}
