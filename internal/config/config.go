package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

type APIConfig struct {
	Addr           string
	UploadDir      string
	MaxUploadBytes int64
	UserIDHeader   string
	SourceType     string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency         int
	MaxActiveTransforms int
	OutputDir           string
	FontPath            string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type WebhookConfig struct {
	SigningSecret string
}

type RateLimitConfig struct {
	Capacity int
	Window   time.Duration
}

type TelemetryConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	defaultTransformSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:           env("IMAGEKILN_API_ADDR", ":8080"),
			UploadDir:      env("IMAGEKILN_UPLOAD_DIR", "./uploads"),
			MaxUploadBytes: envInt64("IMAGEKILN_MAX_UPLOAD_BYTES", 10<<20),
			UserIDHeader:   env("IMAGEKILN_USER_ID_HEADER", "X-User-ID"),
			SourceType:     env("IMAGEKILN_SOURCE_TYPE", "local_file"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("IMAGEKILN_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:         envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveTransforms: envInt("WORKER_MAX_ACTIVE_TRANSFORMS", defaultTransformSlots),
			OutputDir:           env("IMAGEKILN_OUTPUT_DIR", ""),
			FontPath:            env("IMAGEKILN_FONT_PATH", ""),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "imagekiln-images"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Webhook: WebhookConfig{
			SigningSecret: env("WEBHOOK_SIGNING_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Capacity: envInt("RATE_LIMIT_CAPACITY", 30),
			Window:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Telemetry: TelemetryConfig{
			Exporter:     env("IMAGEKILN_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("IMAGEKILN_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("IMAGEKILN_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
