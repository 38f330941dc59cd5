// Ocean-color matchup server entry point
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rkm/oceancolor-matchup/internal/api"
	"github.com/rkm/oceancolor-matchup/internal/cmr"
	"github.com/rkm/oceancolor-matchup/internal/config"
	"github.com/rkm/oceancolor-matchup/internal/matchup"
	"github.com/rkm/oceancolor-matchup/internal/oceandata"
	"github.com/rkm/oceancolor-matchup/internal/sensor"
	"github.com/rkm/oceancolor-matchup/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting ocean-color matchup server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_backend", cfg.Storage.Backend,
		"workers", cfg.Matchup.Workers,
	)

	registry := sensor.NewRegistry()
	if cfg.Matchup.RegistryPath != "" {
		registry, err = sensor.LoadRegistry(cfg.Matchup.RegistryPath)
		if err != nil {
			return fmt.Errorf("failed to load product registry: %w", err)
		}
		logger.Info("loaded product registry", "path", cfg.Matchup.RegistryPath)
	}

	cmrClient := cmr.NewClient(cfg.CMR.BaseURL, cfg.CMR.Timeout).WithLogger(logger)
	searcher := cmr.NewGranuleSearcher(cmrClient)
	logger.Info("using CMR catalog", "base_url", cfg.CMR.BaseURL)

	downloader := oceandata.NewClient(
		cfg.OceanData.BaseURL,
		cfg.OceanData.Username,
		cfg.OceanData.Password,
		cfg.OceanData.Timeout,
	).WithLogger(logger)

	backend, err := buildStorageBackend(cfg, logger)
	if err != nil {
		return err
	}
	store := storage.NewStore(backend, downloader, cfg.Storage.Download, logger)

	service := matchup.NewService(registry, searcher, matchup.NewStoreFetcher(store), matchup.Options{
		Workers: cfg.Matchup.Workers,
	}, logger)

	handlers := api.NewHandlers(cfg, service, searcher, downloader, registry, logger)
	router := api.NewRouter(handlers, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func buildStorageBackend(cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "minio":
		backend, err := storage.NewMinIO(context.Background(), storage.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			UseSSL:    cfg.Storage.MinIOUseSSL,
			CacheDir:  cfg.Storage.MinIOCacheDir,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio storage: %w", err)
		}
		logger.Info("using minio granule archive",
			"endpoint", cfg.Storage.MinIOEndpoint, "bucket", cfg.Storage.MinIOBucket)
		return backend, nil

	default:
		if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		backend, err := storage.NewFileSystem(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize filesystem storage: %w", err)
		}
		logger.Info("using filesystem granule archive", "root", cfg.Storage.Root)
		return backend, nil
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
