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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolscheap/toolscheap/internal/config"
	"github.com/toolscheap/toolscheap/internal/health"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/metrics"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/services"
	"github.com/toolscheap/toolscheap/internal/storage"
	"github.com/toolscheap/toolscheap/internal/tracing"
	"github.com/toolscheap/toolscheap/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()
	log.Info("configuration loaded", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEndpoint != "" {
		shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
			ServiceName:    "worker",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.TracingEndpoint,
			Enabled:        true,
			SampleRate:     1.0,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
		log.Info("tracing enabled", "endpoint", cfg.TracingEndpoint)
	}

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
	instrumentedStore := metrics.NewInstrumentedStorage(store)
	log.Info("storage ready", "backend", cfg.StorageBackend)

	jobs := job.NewRepository(pool)
	usage := job.NewUsageRepository(pool)
	queueStore := queue.NewPostgresStore(pool)
	signer := storage.NewURLSigner(cfg.SigningSecret, cfg.BaseURL)

	var remover services.BackgroundRemover
	if cfg.RemoveBgURL != "" {
		remover = services.NewRemoveBgClient(cfg.RemoveBgURL, cfg.RemoveBgKey)
		log.Info("background removal service configured")
	}
	var summarizer services.Summarizer
	if cfg.AIServiceURL != "" {
		summarizer = services.NewChatSummarizer(cfg.AIServiceURL, cfg.AIServiceKey, "")
		log.Info("summarizer service configured")
	}

	registry := worker.BuildRegistry(worker.Deps{
		Jobs:            jobs,
		Storage:         instrumentedStore,
		Signer:          signer,
		Usage:           usage,
		Remover:         remover,
		Summarizer:      summarizer,
		TempDir:         os.TempDir(),
		SignedURLTTL:    cfg.SignedURLTTL,
		FFmpegPath:      cfg.FFmpegPath,
		FFprobePath:     cfg.FFprobePath,
		SofficePath:     cfg.SofficePath,
		JobTimeout:      cfg.JobTimeout,
		VideoJobTimeout: cfg.VideoJobTimeout,
		Metrics:         metrics.NewJobCollector(),
	})
	if cfg.TracingEndpoint != "" {
		registry.Use(tracing.JobSpans())
	}
	log.Info("handlers registered", "tools", len(registry.Tools()))

	workerPool := queue.NewPool(queueStore, jobs, registry, queue.PoolOptions{
		Queues:            cfg.QueueNames,
		Concurrency:       cfg.WorkerConcurrency,
		PollInterval:      cfg.PollInterval,
		VisibilityTimeout: cfg.VisibilityTimeout,
	})

	// Queue depth gauge and a liveness endpoint on the side.
	go reportQueueDepth(ctx, queueStore)
	go serveMetrics(ctx, cfg.Port, log)

	log.Info("worker starting",
		"queues", cfg.QueueNames,
		"concurrency", cfg.WorkerConcurrency)

	workerPool.Run(ctx)

	log.Info("worker stopped gracefully")
	return nil
}

func reportQueueDepth(ctx context.Context, store *queue.PostgresStore) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depths, err := store.Depth(ctx)
			if err != nil {
				continue
			}
			for q, n := range depths {
				metrics.JobsInQueue.WithLabelValues(q).Set(float64(n))
			}
		}
	}
}

func serveMetrics(ctx context.Context, port int, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /health/live", health.LivenessHandler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server failed", "error", err)
	}
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
