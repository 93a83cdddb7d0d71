package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/pipeline"
	"github.com/imagekiln/imagekiln/internal/queue"
	"github.com/imagekiln/imagekiln/internal/store"
	"github.com/imagekiln/imagekiln/internal/webhook"
	"go.opentelemetry.io/otel"
)

func newTestWorker(t *testing.T, imageStore store.ImageStore, sender webhookSender) *Server {
	t.Helper()
	s := &Server{
		logger:         log.New(io.Discard, "", 0),
		sem:            make(chan struct{}, 1),
		localProcessor: pipeline.NewLocalProcessor("", ""),
		webhookClient:  sender,
		imageStore:     imageStore,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("imagekiln/worker-test"),
	}
	if usageStore, ok := imageStore.(store.UsageStore); ok {
		s.usageStore = usageStore
	}
	return s
}

func writeTestPNG(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 70, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func transformTask(t *testing.T, payload queue.TransformImagePayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewTransformImageTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestHandleTransformImageCreatesDerivedRecord(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.png")
	writeTestPNG(t, sourcePath, 120, 60)

	imageStore := store.NewMemoryImageStore()
	s := newTestWorker(t, imageStore, nil)

	width := 40
	payload := queue.TransformImagePayload{
		ImageID:      "img-1",
		UserID:       "user-1",
		SourceType:   domain.SourceTypeLocalFile,
		ObjectKey:    sourcePath,
		OriginalName: "source.png",
		Spec: domain.TransformSpec{
			Resize: &domain.ResizeSpec{Width: width, Height: 20},
			Format: &domain.FormatSpec{Type: "png"},
		},
		RequestedAt: time.Now().UTC(),
	}

	if err := s.handleTransformImage(context.Background(), transformTask(t, payload)); err != nil {
		t.Fatalf("handle transform: %v", err)
	}

	images, err := imageStore.ListByUser(context.Background(), "user-1", 1, 10)
	if err != nil {
		t.Fatalf("list images: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 derived record, got %d", len(images))
	}

	derived := images[0]
	if derived.Filename == "source.png" {
		t.Fatal("derived artifact must not reuse the source filename")
	}
	if derived.MIMEType != "image/png" {
		t.Fatalf("expected image/png, got %s", derived.MIMEType)
	}
	if derived.UserID != "user-1" {
		t.Fatalf("expected derived record owned by user-1, got %s", derived.UserID)
	}

	data, err := os.ReadFile(derived.FilePath)
	if err != nil {
		t.Fatalf("read derived artifact: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode derived artifact: %v", err)
	}
	if decoded.Bounds().Dx() != width || decoded.Bounds().Dy() != 20 {
		t.Fatalf("expected 40x20, got %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}

	// The source stays untouched.
	if _, err := os.Stat(sourcePath); err != nil {
		t.Fatalf("source file should survive: %v", err)
	}
}

func TestHandleTransformImageMissingSourceSkipsRetry(t *testing.T) {
	s := newTestWorker(t, store.NewMemoryImageStore(), nil)

	payload := queue.TransformImagePayload{
		ImageID:    "img-gone",
		UserID:     "user-1",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  filepath.Join(t.TempDir(), "missing.png"),
	}

	err := s.handleTransformImage(context.Background(), transformTask(t, payload))
	if err == nil {
		t.Fatal("expected an error for a missing source")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a missing source, got %v", err)
	}
}

func TestHandleTransformImageSendsWebhooks(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.png")
	writeTestPNG(t, sourcePath, 30, 30)

	var events []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		events = append(events, r.Header.Get(webhook.HeaderEvent))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	sender := webhook.NewClient(webhook.Config{
		SigningSecret: "test-secret",
		MaxAttempts:   1,
	})
	s := newTestWorker(t, store.NewMemoryImageStore(), sender)

	payload := queue.TransformImagePayload{
		ImageID:    "img-2",
		UserID:     "user-1",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  sourcePath,
		WebhookURL: hook.URL,
		Spec:       domain.TransformSpec{Flip: true},
	}
	if err := s.handleTransformImage(context.Background(), transformTask(t, payload)); err != nil {
		t.Fatalf("handle transform: %v", err)
	}

	payload.ImageID = "img-3"
	payload.ObjectKey = filepath.Join(dir, "absent.png")
	if err := s.handleTransformImage(context.Background(), transformTask(t, payload)); err == nil {
		t.Fatal("expected an error for the missing source")
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 webhook deliveries, got %d", len(events))
	}
	if events[0] != "image.transformed" {
		t.Fatalf("expected image.transformed first, got %s", events[0])
	}
	if events[1] != "image.transform_failed" {
		t.Fatalf("expected image.transform_failed second, got %s", events[1])
	}
}

func TestRecordUsageWritesUsageLog(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	payload := queue.TransformImagePayload{ImageID: "img-1", UserID: "user-1"}
	s.recordUsage(context.Background(), payload, pipeline.Derived{
		Width:  100,
		Height: 50,
		Bytes:  4_096,
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.ImageID != "img-1" {
		t.Fatalf("expected image_id=img-1, got %s", usageStore.log.ImageID)
	}
	if usageStore.log.PixelsProcessed != 5_000 {
		t.Fatalf("expected pixels_processed=5000, got %d", usageStore.log.PixelsProcessed)
	}
	if usageStore.log.BytesWritten != 4_096 {
		t.Fatalf("expected bytes_written=4096, got %d", usageStore.log.BytesWritten)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageDefaultsAnonymousAndMinimumCompute(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), queue.TransformImagePayload{ImageID: "img-2"}, pipeline.Derived{
		Width:  5,
		Height: 5,
		Bytes:  200,
	}, 0)

	if usageStore.log.UserID != "anonymous" {
		t.Fatalf("expected anonymous user, got %s", usageStore.log.UserID)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}
