// Package main is the entrypoint for the clustering job service: it stores
// task status and results in Postgres and hands new tasks to the workers
// over RabbitMQ.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/api"
	"github.com/hellof20/mihoyo-cs-tickets/internal/api/handler"
	mw "github.com/hellof20/mihoyo-cs-tickets/internal/api/middleware"
	"github.com/hellof20/mihoyo-cs-tickets/internal/config"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobs"
	"github.com/hellof20/mihoyo-cs-tickets/internal/logger"
	"github.com/hellof20/mihoyo-cs-tickets/internal/queue"
	"github.com/hellof20/mihoyo-cs-tickets/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("job service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg := config.Load()
	log := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.ValidateJobService(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Info("config loaded", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	// 4. Connect the job queue
	pub, err := newPublisher(cfg.AMQP, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	// 5. Build router
	if cfg.Worker.KeyHash == "" {
		log.Warn("WORKER_KEY_HASH not set, worker endpoints are disabled")
	}
	router := buildRouter(cfg, store.NewPostgresStore(pool), pub, log)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.JobService.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("job service listening", "addr", addr)
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

	log.Info("job service stopped gracefully")
	return nil
}

// newPublisher dials RabbitMQ when AMQP_URL is set. Without it job events
// are only logged, which is enough for local development.
func newPublisher(cfg config.AMQPConfig, log *slog.Logger) (queue.Publisher, error) {
	if cfg.URL == "" {
		log.Info("AMQP_URL not set, job events are logged only")
		return queue.NewLogPublisher(log), nil
	}
	pub, err := queue.Dial(queue.Config{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		Queue:      cfg.Queue,
		RoutingKey: cfg.RoutingKey,
		Heartbeat:  10 * time.Second,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}
	return pub, nil
}

func buildRouter(cfg *config.Config, st store.Store, pub queue.Publisher, log *slog.Logger) http.Handler {
	svc := jobs.NewService(st, pub, log)

	checks := map[string]handler.Pinger{"database": st, "queue": nil}
	if p, ok := pub.(handler.Pinger); ok {
		checks["queue"] = p
	}

	return api.NewRouter(api.Dependencies{
		WorkerAuth:       mw.NewWorkerAuth(cfg.Worker.KeyHash),
		HealthHandler:    handler.NewHealthHandler(checks),
		CreateTask:       handler.NewCreateTaskHandler(svc),
		ListTasks:        handler.NewListTasksHandler(svc),
		GetTask:          handler.NewGetTaskHandler(svc),
		GetTaskFAQ:       handler.NewTaskFAQHandler(svc),
		GetClusterDetail: handler.NewClusterDetailHandler(svc),
		UpdateTaskStatus: handler.NewUpdateTaskStatusHandler(svc),
		PublishResults:   handler.NewPublishResultsHandler(svc),
	})
}
