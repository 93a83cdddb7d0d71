package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/imagekiln/imagekiln/internal/config"
	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/id"
	"github.com/imagekiln/imagekiln/internal/queue"
	"github.com/imagekiln/imagekiln/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger         *log.Logger
	images         store.ImageStore
	queueClient    queueEnqueuer
	storage        objectStorage
	uploadDir      string
	maxUploadBytes int64
	sourceType     string
	userIDHeader   string
	rateLimiter    RateLimiter
	metrics        *metrics
	tracer         trace.Tracer
	mux            *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueTransformImage(ctx context.Context, payload queue.TransformImagePayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	RemoveObject(ctx context.Context, objectKey string) error
}

func NewServer(
	logger *log.Logger,
	cfg config.APIConfig,
	images store.ImageStore,
	queueClient queueEnqueuer,
	storage objectStorage,
	rateLimiter RateLimiter,
) *Server {
	if storage == nil {
		storage = unavailableObjectStorage{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if strings.TrimSpace(cfg.UserIDHeader) == "" {
		cfg.UserIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:         logger,
		images:         images,
		queueClient:    queueClient,
		storage:        storage,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: cfg.MaxUploadBytes,
		sourceType:     normalizeSourceType(cfg.SourceType),
		userIDHeader:   cfg.UserIDHeader,
		rateLimiter:    rateLimiter,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("imagekiln/api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) WriteObject(context.Context, string, []byte, string) error {
	return errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) RemoveObject(context.Context, string) error {
	return errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/images", s.handleUpload)
	s.mux.HandleFunc("GET /v1/images", s.handleList)
	s.mux.HandleFunc("GET /v1/images/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /v1/images/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /v1/images/{id}/transform", s.handleTransform)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "upload is not an image"})
		return
	}

	originalName := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".jpg"
	}
	filename := id.New() + ext

	filePath, err := s.persistUpload(r.Context(), filename, data, contentType)
	if err != nil {
		s.logger.Printf("persist upload failed filename=%s err=%v", filename, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
		return
	}

	img := domain.Image{
		ID:           id.New(),
		UserID:       userID,
		Filename:     filename,
		OriginalName: originalName,
		FilePath:     filePath,
		FileSize:     int64(len(data)),
		MIMEType:     contentType,
		SourceType:   s.sourceType,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.images.Create(r.Context(), img); err != nil {
		s.logger.Printf("create image record failed id=%s err=%v", img.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create image record"})
		return
	}

	s.metrics.uploadBytes.Add(float64(len(data)))
	writeJSON(w, http.StatusCreated, map[string]any{"image": img})
}

func (s *Server) persistUpload(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	if s.sourceType == domain.SourceTypeS3Object {
		objectKey := "uploads/" + filename
		if err := s.storage.WriteObject(ctx, objectKey, data, contentType); err != nil {
			return "", err
		}
		return objectKey, nil
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	fullPath := filepath.Join(s.uploadDir, filename)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return fullPath, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	images, err := s.images.ListByUser(r.Context(), userID, page, limit)
	if err != nil {
		s.logger.Printf("list images failed user=%s err=%v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list images"})
		return
	}
	total, err := s.images.CountByUser(r.Context(), userID)
	if err != nil {
		s.logger.Printf("count images failed user=%s err=%v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list images"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"images": images,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	img, ok := s.ownedImage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"image": img})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	img, ok := s.ownedImage(w, r)
	if !ok {
		return
	}

	if err := s.images.Delete(r.Context(), img.ID); err != nil && !errors.Is(err, store.ErrImageNotFound) {
		s.logger.Printf("delete image record failed id=%s err=%v", img.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete image"})
		return
	}

	// The record is gone; file cleanup is best-effort.
	switch img.SourceType {
	case domain.SourceTypeS3Object:
		if err := s.storage.RemoveObject(r.Context(), img.FilePath); err != nil {
			s.logger.Printf("remove object failed key=%s err=%v", img.FilePath, err)
		}
	default:
		if err := os.Remove(img.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Printf("remove file failed path=%s err=%v", img.FilePath, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	img, ok := s.ownedImage(w, r)
	if !ok {
		return
	}

	var req domain.TransformRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.verifySourceExists(r.Context(), img); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.TransformImagePayload{
		ImageID:      img.ID,
		UserID:       img.UserID,
		SourceType:   img.SourceType,
		ObjectKey:    img.FilePath,
		OriginalName: img.Filename,
		WebhookURL:   req.WebhookURL,
		Spec:         req.Spec,
		RequestedAt:  time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueTransformImage(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed image_id=%s err=%v", img.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue transform"})
		return
	}
	s.metrics.transformsEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"image_id":    img.ID,
		"task_id":     taskInfo.ID,
		"queue":       taskInfo.Queue,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) verifySourceExists(ctx context.Context, img domain.Image) error {
	switch img.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(img.FilePath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source file is missing: %s", img.Filename)
			}
			return fmt.Errorf("source file check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, img.FilePath)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", img.Filename)
		}
		return nil
	}
}

// ownedImage loads the {id} path image and enforces that the requesting
// user owns it.
func (s *Server) ownedImage(w http.ResponseWriter, r *http.Request) (domain.Image, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return domain.Image{}, false
	}

	imageID := r.PathValue("id")
	img, found, err := s.images.Get(r.Context(), imageID)
	if err != nil {
		s.logger.Printf("fetch image failed id=%s err=%v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load image"})
		return domain.Image{}, false
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return domain.Image{}, false
	}
	if img.UserID != userID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		return domain.Image{}, false
	}
	return img, true
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(s.userIDHeader))
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": s.userIDHeader + " header is required"})
		return "", false
	}
	return userID, true
}

func normalizeSourceType(in string) string {
	if strings.EqualFold(strings.TrimSpace(in), domain.SourceTypeS3Object) {
		return domain.SourceTypeS3Object
	}
	return domain.SourceTypeLocalFile
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
