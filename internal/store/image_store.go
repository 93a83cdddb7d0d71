package store

import (
	"context"
	"errors"

	"github.com/imagekiln/imagekiln/internal/domain"
)

var ErrImageNotFound = errors.New("image not found")

// ImageStore is the image catalog: original uploads and derived artifacts
// share one table. Records are created once and never updated.
type ImageStore interface {
	Create(ctx context.Context, img domain.Image) error
	Get(ctx context.Context, id string) (domain.Image, bool, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]domain.Image, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id string) error
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
