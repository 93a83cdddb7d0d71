package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/imagekiln/imagekiln/internal/config"
	"github.com/imagekiln/imagekiln/internal/storage"
	"github.com/imagekiln/imagekiln/internal/store"
	"github.com/imagekiln/imagekiln/internal/telemetry"
	"github.com/imagekiln/imagekiln/internal/webhook"
	"github.com/imagekiln/imagekiln/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "imagekiln-worker",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	imageStore, closeStore := buildImageStore(ctx, cfg, logger)
	defer closeStore()

	// Object storage is only reachable when configured with an endpoint;
	// a purely local deployment runs without it.
	var storageClient *storage.Client
	if cfg.Storage.Endpoint != "" {
		storageClient, err = storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Printf("object storage unavailable, continuing local-only: %v", err)
			storageClient = nil
		}
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		MaxAttempts:   3,
	})

	logger.Printf(
		"starting worker concurrency=%d max_active_transforms=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveTransforms,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, storageClient, webhookClient, imageStore, nil)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		metricsAddr := ":9091"
		logger.Printf("worker metrics on %s/metrics", metricsAddr)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
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
