package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imagekiln/imagekiln/internal/api"
	"github.com/imagekiln/imagekiln/internal/config"
	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/queue"
	"github.com/imagekiln/imagekiln/internal/ratelimit"
	"github.com/imagekiln/imagekiln/internal/storage"
	"github.com/imagekiln/imagekiln/internal/store"
	"github.com/imagekiln/imagekiln/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "imagekiln-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	imageStore, closeStore := buildImageStore(ctx, cfg, logger)
	defer closeStore()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var objectStorage *storage.Client
	if cfg.API.SourceType == domain.SourceTypeS3Object {
		objectStorage, err = storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("object storage setup failed: %v", err)
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			logger.Fatalf("ensure bucket failed: %v", err)
		}
	}

	rateLimiter := buildRateLimiter(cfg, logger)

	var app *api.Server
	if objectStorage != nil {
		app = api.NewServer(logger, cfg.API, imageStore, queueClient, objectStorage, rateLimiter)
	} else {
		app = api.NewServer(logger, cfg.API, imageStore, queueClient, nil, rateLimiter)
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func buildImageStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.ImageStore, func()) {
	if cfg.Database.DSN == "" {
		logger.Printf("POSTGRES_DSN is empty, using the in-memory image store")
		return store.NewMemoryImageStore(), func() {}
	}

	pg, err := store.NewPostgresImageStore(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("postgres setup failed: %v", err)
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}
}

func buildRateLimiter(cfg config.Config, logger *log.Logger) api.RateLimiter {
	if cfg.RateLimit.Capacity <= 0 {
		logger.Printf("rate limiting disabled")
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})

	limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}
	return limiter
}
