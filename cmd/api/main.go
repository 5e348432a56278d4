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
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/toolscheap/toolscheap/internal/analytics"
	"github.com/toolscheap/toolscheap/internal/api"
	"github.com/toolscheap/toolscheap/internal/billing"
	"github.com/toolscheap/toolscheap/internal/config"
	"github.com/toolscheap/toolscheap/internal/health"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/metrics"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/storage"
	"github.com/toolscheap/toolscheap/internal/tracing"
)

const (
	rateLimitPerMinute = 60
	rateLimitBurst     = 10
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

	ctx := context.Background()

	if cfg.TracingEndpoint != "" {
		shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
			ServiceName:    "api",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.TracingEndpoint,
			Enabled:        true,
			SampleRate:     1.0,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(ctx) }()
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

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpt)
		defer func() { _ = redisClient.Close() }()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, rate limiting falls back to memory", "error", err)
		} else {
			log.Info("redis connected")
		}
	}

	jobs := job.NewRepository(pool)
	usage := job.NewUsageRepository(pool)
	queueStore := queue.NewPostgresStore(pool)
	enqueuer := queue.NewTxEnqueuer(pool, jobs, queueStore, cfg.MaxRetries)
	signer := storage.NewURLSigner(cfg.SigningSecret, cfg.BaseURL)
	entitlements := billing.NewEntitlements(billing.NewPostgresSubscriptions(pool), usage)

	var billingService *billing.Service
	var webhookHandler *billing.WebhookHandler
	if cfg.StripeSecretKey != "" {
		stripeClient := billing.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripePriceIDPro)
		billingService = billing.NewService(stripeClient, pool, cfg.BaseURL)
		webhookHandler = billing.NewWebhookHandler(billingService, cfg.StripeWebhookSecret)
		log.Info("stripe billing configured")
	}

	checker := health.NewChecker(pool, redisClient).
		WithStorage(instrumentedStore).
		WithQueue(queueStore)

	srv := &api.Server{
		Jobs:          jobs,
		Enqueuer:      enqueuer,
		Storage:       instrumentedStore,
		Signer:        signer,
		Entitlements:  entitlements,
		Usage:         usage,
		Billing:       billingService,
		StripeWebhook: webhookHandler,
		Analytics:     analytics.NewService(jobs, usage, queueStore),
		Health:        checker,
		Limiter:       api.NewRateLimiter(redisClient, rateLimitPerMinute, rateLimitBurst),
		JWTSecret:     cfg.JWTSecret,
		MaxUploadSize: cfg.MaxUploadSize,
		SyncThreshold: cfg.SyncThreshold,
		SignedURLTTL:  cfg.SignedURLTTL,
		DevMode:       cfg.Environment == "development",
	}

	routes := srv.Routes()
	if cfg.TracingEndpoint != "" {
		routes = otelhttp.NewHandler(routes, "api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + metrics.NormalizePath(r.URL.Path)
			}))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", routes)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // large result streams
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("forced shutdown: %w", err)
		}
	}

	log.Info("server stopped gracefully")
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
