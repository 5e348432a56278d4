package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	BaseURL       string
	MaxUploadSize int64

	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	// Storage backend: "local" or "minio".
	StorageBackend   string
	LocalStoragePath string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	// Signed download URLs.
	SigningSecret string
	SignedURLTTL  time.Duration

	// Queue / worker tier.
	WorkerConcurrency int
	QueueNames        []string
	MaxRetries        int
	RetryBackoffs     []time.Duration
	VisibilityTimeout time.Duration
	JobTimeout        time.Duration
	VideoJobTimeout   time.Duration
	PollInterval      time.Duration

	// Tool executables and external services.
	FFmpegPath   string
	FFprobePath  string
	SofficePath  string
	RemoveBgURL  string
	RemoveBgKey  string
	AIServiceURL string
	AIServiceKey string

	// Inline processing cutoff: uploads below this are handled in-request.
	SyncThreshold int64

	JWTSecret string

	StripeSecretKey     string
	StripePriceIDPro    string
	StripeWebhookSecret string

	TracingEndpoint string
}

func Load() (*Config, error) {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 500*1024*1024)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = getEnvString("REDIS_URL", "")

	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", "local")
	cfg.LocalStoragePath = getEnvString("LOCAL_STORAGE_PATH", "./data/files")

	if cfg.StorageBackend == "minio" {
		cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
		if cfg.MinIOEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
		cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
		if cfg.MinIOAccessKey == "" {
			return nil, fmt.Errorf("MINIO_ACCESS_KEY is required when STORAGE_BACKEND=minio")
		}
		cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
		if cfg.MinIOSecretKey == "" {
			return nil, fmt.Errorf("MINIO_SECRET_KEY is required when STORAGE_BACKEND=minio")
		}
	}
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "tools")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.SigningSecret = os.Getenv("SIGNING_SECRET")
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SIGNING_SECRET is required")
	}
	cfg.SignedURLTTL, err = getEnvDuration("SIGNED_URL_TTL", "24h")
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNED_URL_TTL: %w", err)
	}

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.QueueNames = getEnvList("QUEUE_NAMES", []string{"default", "video"})
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 3)
	cfg.RetryBackoffs = []time.Duration{60 * time.Second, 120 * time.Second, 300 * time.Second}
	cfg.VisibilityTimeout, err = getEnvDuration("VISIBILITY_TIMEOUT", "15m")
	if err != nil {
		return nil, fmt.Errorf("invalid VISIBILITY_TIMEOUT: %w", err)
	}
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.VideoJobTimeout, err = getEnvDuration("VIDEO_JOB_TIMEOUT", "10m")
	if err != nil {
		return nil, fmt.Errorf("invalid VIDEO_JOB_TIMEOUT: %w", err)
	}
	cfg.PollInterval, err = getEnvDuration("QUEUE_POLL_INTERVAL", "1s")
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_POLL_INTERVAL: %w", err)
	}

	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")
	cfg.SofficePath = getEnvString("SOFFICE_PATH", "soffice")
	cfg.RemoveBgURL = getEnvString("REMOVEBG_URL", "")
	cfg.RemoveBgKey = os.Getenv("REMOVEBG_KEY")
	cfg.AIServiceURL = getEnvString("AI_API_URL", "")
	cfg.AIServiceKey = os.Getenv("AI_API_KEY")

	cfg.SyncThreshold = getEnvInt64("SYNC_THRESHOLD", 20*1024*1024)

	cfg.JWTSecret = getEnvString("JWT_SECRET", "change-me-in-production")

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripePriceIDPro = os.Getenv("STRIPE_PRICE_ID_PRO")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	cfg.TracingEndpoint = getEnvString("OTLP_ENDPOINT", "")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.MaxUploadSize)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}
	if c.SyncThreshold < 1 {
		return fmt.Errorf("invalid sync threshold: %d", c.SyncThreshold)
	}
	if c.StorageBackend != "local" && c.StorageBackend != "minio" {
		return fmt.Errorf("unknown storage backend: %s", c.StorageBackend)
	}
	if len(c.QueueNames) == 0 {
		return fmt.Errorf("at least one queue name is required")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
