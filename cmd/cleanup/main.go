package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolscheap/toolscheap/internal/billing"
	"github.com/toolscheap/toolscheap/internal/config"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/storage"
	"github.com/toolscheap/toolscheap/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("starting cleanup run")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	store, err := buildStorage(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("storage ready", "backend", cfg.StorageBackend)

	// Everyone gets at least the pro retention window; the per-tier cutoff
	// is enforced at download time by URL expiry, not by deletion.
	retention := time.Duration(billing.ProRetentionDays) * 24 * time.Hour
	cleaner := worker.NewCleaner(job.NewRepository(pool), store, retention)

	deleted, err := cleaner.Run(logger.WithLogger(ctx, log))
	if err != nil {
		return fmt.Errorf("cleanup run: %w", err)
	}

	log.Info("cleanup completed",
		"deleted", deleted,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func buildStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "minio":
		store, err := storage.NewMinIOStorage(&storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStorage(cfg.LocalStoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store, nil
	}
}
