// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-workflows/internal/common/camunda"
	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/observability"
	"signal-workflows/internal/common/startup"
	"signal-workflows/internal/runs"
	"signal-workflows/internal/workers"
	"signal-workflows/pkg/registry"
)

const serviceName = "workflow-worker"

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
	log.Info("Starting job worker", map[string]interface{}{
		"taskQueue": cfg.Worker.TaskQueue,
		"name":      cfg.Worker.Name,
	})

	obs := observability.New(serviceName, log)
	defer obs.Shutdown()

	client, err := startup.ConnectZeebe(ctx, cfg.Camunda, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}()

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

	if cfg.Worker.DeployOnStart {
		if err := camunda.Deploy(ctx, client, provider, cfg.Worker.TaskQueue, log); err != nil {
			return fmt.Errorf("deploy processes: %w", err)
		}
	}

	// workflow code running here calls its activities and children through the platform
	executor := camunda.NewExecutor(client, camunda.ExecutorOptions{
		DefaultQueue:   cfg.Worker.TaskQueue,
		DefaultRetries: cfg.Worker.MaxRetries,
		Logger:         log,
	})
	dispatcher := camunda.NewDispatcher(camunda.DispatcherOptions{
		Invoker:        executor,
		Observer:       store,
		Metrics:        obs,
		Logger:         log,
		DefaultTimeout: config.GetDuration(cfg.Worker.Timeout),
	})

	w := camunda.NewWorker(client.GetClient(), dispatcher, camunda.WorkerOptions{
		TaskQueue:       cfg.Worker.TaskQueue,
		MaxJobsActive:   cfg.Worker.MaxJobsActive,
		DefaultTimeout:  config.GetDuration(cfg.Worker.Timeout),
		WorkflowTimeout: config.Seconds(cfg.Worker.WorkflowTimeout),
		Name:            cfg.Worker.Name,
	}, log)
	if n := w.Start(provider); n == 0 {
		log.Warn("Nothing is served on this task queue", map[string]interface{}{"taskQueue": cfg.Worker.TaskQueue})
	}

	// --- Health & Metrics Server ---
	health := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           healthMux(client),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Health/Metrics server listening", map[string]interface{}{"address": health.Addr})
		if err := health.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("Health/Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	log.Info("Shutdown signal received, stopping workers...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w.Stop()
	if err := health.Shutdown(shutdownCtx); err != nil {
		log.Error("Health/Metrics server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func healthMux(client *camunda.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := client.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
