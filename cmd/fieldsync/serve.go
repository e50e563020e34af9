package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/conformly/fieldsync/internal"
	"github.com/conformly/fieldsync/internal/evidence"
	"github.com/conformly/fieldsync/internal/forms"
	"github.com/conformly/fieldsync/internal/gateway"
	"github.com/conformly/fieldsync/internal/handler"
	"github.com/conformly/fieldsync/internal/metrics"
	"github.com/conformly/fieldsync/internal/middleware"
	"github.com/conformly/fieldsync/internal/queue"
	"github.com/conformly/fieldsync/internal/storage"
	"github.com/conformly/fieldsync/internal/syncer"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Durable capture queue
	store, err := queue.NewSQLiteStore(cfg.QueuePath, logger)
	if err != nil {
		return fmt.Errorf("queue initialization failed: %w", err)
	}
	defer store.Close()
	logger.Info("Queue ready", "path", cfg.QueuePath)

	// Form schema registry
	registry, err := forms.NewRegistry()
	if err != nil {
		return fmt.Errorf("form registry initialization failed: %w", err)
	}

	// Evidence storage
	var evidenceStore storage.Storage
	var localStore *storage.LocalStorage
	switch cfg.StorageProvider {
	case "s3":
		evidenceStore, err = storage.NewS3Storage(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			BucketName:      cfg.S3BucketName,
			Region:          cfg.S3Region,
			PublicURL:       cfg.S3PublicURL,
		}, logger)
	default:
		localStore, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
		evidenceStore = localStore
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Remote persistence gateway
	gw, err := gateway.NewHTTPGateway(gateway.HTTPConfig{
		BaseURL:        cfg.RemoteBaseURL,
		APIKey:         cfg.RemoteAPIKey,
		RequestTimeout: cfg.RemoteTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("gateway initialization failed: %w", err)
	}

	// Sync engine
	uploader := evidence.NewUploader(evidenceStore, logger)
	engine := syncer.New(store, gw, syncer.Config{
		RecordTimeout: cfg.RecordTimeout,
		Uploader:      uploader,
	}, logger)

	if cfg.SyncEnabled {
		engine.StartAutoSync(ctx, cfg.SyncInterval)
		defer engine.StopAutoSync()
		logger.Info("Auto-sync started", "interval", cfg.SyncInterval)
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Locally stored evidence files
	if localStore != nil {
		filesFS := http.FileServer(http.Dir(localStore.BasePath()))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	handler.NewFormHandler(store, registry, cfg.OrganizationID, logger).RegisterRoutes(mux)
	handler.NewSyncHandler(engine, store, logger).RegisterRoutes(mux)

	// Middleware stacks
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	root := metrics.Middleware(loggingMw.Handler(mux))

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Agent started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}
