package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/imagekiln/imagekiln/internal/config"
	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/id"
	"github.com/imagekiln/imagekiln/internal/pipeline"
	"github.com/imagekiln/imagekiln/internal/queue"
	"github.com/imagekiln/imagekiln/internal/storage"
	"github.com/imagekiln/imagekiln/internal/store"
	"github.com/imagekiln/imagekiln/internal/transform"
	"github.com/imagekiln/imagekiln/internal/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeTransformed = "transformed"
	outcomeFailed      = "failed"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	webhookClient   webhookSender
	imageStore      store.ImageStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	imageStore store.ImageStore,
	usageStore store.UsageStore,
) (*Server, error) {
	localProcessor := pipeline.NewLocalProcessor(workerCfg.OutputDir, workerCfg.FontPath)

	// Object storage is optional; without it only local_file sources are served.
	var objectProcessor *pipeline.Processor
	if storageClient != nil {
		var err error
		objectProcessor, err = pipeline.NewProcessor(
			pipeline.ObjectStoreFetcher{Storage: storageClient},
			pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: "outputs"},
			transform.WithFontPath(workerCfg.FontPath),
		)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
	}

	if usageStore == nil {
		if imageAndUsageStore, ok := imageStore.(store.UsageStore); ok {
			usageStore = imageAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveTransforms)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		webhookClient:   webhookClient,
		imageStore:      imageStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("imagekiln/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransformImage, s.handleTransformImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTransformImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := outcomeFailed

	payload, err := queue.ParseTransformImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.transform_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("image.id", payload.ImageID),
		attribute.String("image.source_type", payload.SourceType),
		attribute.String("image.object_key", payload.ObjectKey),
	)
	defer span.End()
	defer func() {
		s.metrics.transformDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.transformsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeTransforms.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTransforms.Dec()
	}()

	s.logger.Printf(
		"Working... image_id=%s source_type=%s object_key=%s",
		payload.ImageID,
		payload.SourceType,
		payload.ObjectKey,
	)

	derived, err := s.runPipeline(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		s.dispatchWebhook(ctx, payload, "image.transform_failed", map[string]any{
			"image_id":     payload.ImageID,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		// Bad sources and deterministic transform failures will not heal on
		// retry; only persistence errors are worth another attempt.
		var loadErr *transform.LoadError
		var stageErr *transform.Error
		switch {
		case errors.As(err, &loadErr):
			return fmt.Errorf("load source: %v: %w", err, asynq.SkipRetry)
		case errors.As(err, &stageErr) && stageErr.Stage != "persist":
			return fmt.Errorf("transform: %v: %w", err, asynq.SkipRetry)
		default:
			return fmt.Errorf("transform: %w", err)
		}
	}

	record := s.recordDerivedImage(ctx, payload, derived)
	s.logger.Printf("Transformed image_id=%s derived=%s bytes=%d", payload.ImageID, derived.Filename, derived.Bytes)
	s.recordUsage(ctx, payload, derived, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, "image.transformed", map[string]any{
		"image_id":     payload.ImageID,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"derived":      record,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = outcomeTransformed
	span.SetStatus(codes.Ok, "transformed")
	return nil
}

func (s *Server) runPipeline(ctx context.Context, payload queue.TransformImagePayload) (pipeline.Derived, error) {
	request := pipeline.Request{
		ImageID:      payload.ImageID,
		UserID:       payload.UserID,
		SourceType:   payload.SourceType,
		ObjectKey:    payload.ObjectKey,
		OriginalName: payload.OriginalName,
		Spec:         payload.Spec,
	}

	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		return s.localProcessor.Transform(ctx, request)
	default:
		if s.objectProcessor == nil {
			return pipeline.Derived{}, &transform.LoadError{
				Path: payload.ObjectKey,
				Err:  errors.New("object storage is not configured"),
			}
		}
		return s.objectProcessor.Transform(ctx, request)
	}
}

// recordDerivedImage catalogs the artifact as a regular image owned by the
// same user, so it shows up in listings and can itself be transformed.
func (s *Server) recordDerivedImage(ctx context.Context, payload queue.TransformImagePayload, derived pipeline.Derived) domain.Image {
	record := domain.Image{
		ID:           id.New(),
		UserID:       payload.UserID,
		Filename:     derived.Filename,
		OriginalName: derived.OriginalName,
		FilePath:     derived.Path,
		FileSize:     int64(derived.Bytes),
		MIMEType:     derived.MIMEType,
		SourceType:   payload.SourceType,
		CreatedAt:    time.Now().UTC(),
	}

	if s.imageStore == nil {
		return record
	}
	if err := s.imageStore.Create(ctx, record); err != nil {
		s.logger.Printf("derived image record failed image_id=%s derived=%s err=%v", payload.ImageID, derived.Filename, err)
	}
	return record
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.TransformImagePayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed image_id=%s event=%s err=%v", payload.ImageID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.TransformImagePayload, derived pipeline.Derived, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := payload.UserID
	if userID == "" {
		userID = "anonymous"
	}

	pixelsProcessed := int64(derived.Width) * int64(derived.Height)
	bytesWritten := int64(derived.Bytes)

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		UserID:          userID,
		ImageID:         payload.ImageID,
		PixelsProcessed: pixelsProcessed,
		BytesWritten:    bytesWritten,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed image_id=%s err=%v", payload.ImageID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesWrittenTotal.Add(float64(bytesWritten))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
