// cmd/server/main.go
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"signal-workflows/internal/api"
	"signal-workflows/internal/common/camunda"
	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/observability"
	"signal-workflows/internal/common/startup"
	"signal-workflows/internal/runs"
	"signal-workflows/internal/workers"
	"signal-workflows/pkg/registry"
)

const serviceName = "workflow-api"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer func() { _ = logger.Unwrap(log).Sync() }()
	log.Info("Starting workflow API", map[string]interface{}{
		"environment": cfg.App.Environment,
		"executor":    cfg.Server.Executor,
		"address":     cfg.Server.Address(),
	})

	obs := observability.New(serviceName, log)
	defer obs.Shutdown()

	rdb, err := startup.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer rdb.Close()
	store := runs.NewStore(rdb, startup.RunTTL(cfg.Redis), log)

	provider := registry.NewProvider()
	if err := workers.RegisterAll(provider, workers.NewDependencies(cfg, log, obs)); err != nil {
		return fmt.Errorf("register workflows: %w", err)
	}

	executor, closeExecutor, err := newExecutor(ctx, cfg, store, log)
	if err != nil {
		return err
	}
	defer closeExecutor()

	handler := api.New(api.Options{
		Provider:    provider,
		Executor:    executor,
		Runs:        store,
		APIPrefix:   cfg.Server.APIPrefix,
		TaskQueue:   cfg.Server.TaskQueue,
		SyncTimeout: config.Seconds(cfg.Server.Timeout),
		Logger:      log,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           otelhttp.NewHandler(handler, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{
			"address": srv.Addr,
			"prefix":  cfg.Server.APIPrefix,
		})
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping server...", nil)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// newExecutor selects the execution platform. The local executor runs everything in this process
// and reports completions straight to the run store.
func newExecutor(ctx context.Context, cfg *config.Config, store *runs.Store, log logger.Logger) (registry.Executor, func(), error) {
	switch cfg.Server.Executor {
	case "local":
		exec := &registry.LocalExecutor{OnComplete: store.OnComplete}
		log.Warn("Using the in-process executor, runs are not durable", nil)
		return exec, exec.Wait, nil

	case "", "zeebe":
		client, err := startup.ConnectZeebe(ctx, cfg.Camunda, log)
		if err != nil {
			return nil, nil, err
		}
		exec := camunda.NewExecutor(client, camunda.ExecutorOptions{
			DefaultQueue:   cfg.Server.TaskQueue,
			DefaultRetries: cfg.Worker.MaxRetries,
			Logger:         log,
		})
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
			}
		}
		return exec, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown executor %q", cfg.Server.Executor)
	}
}
