package store

import (
	"context"
	"sort"
	"sync"

	"github.com/imagekiln/imagekiln/internal/domain"
)

// MemoryImageStore keeps the catalog in process memory. Used when no
// Postgres DSN is configured and in tests.
type MemoryImageStore struct {
	mu     sync.RWMutex
	images map[string]domain.Image
	usage  []domain.UsageLog
}

func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{
		images: make(map[string]domain.Image),
	}
}

func (s *MemoryImageStore) Create(_ context.Context, img domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = img
	return nil
}

func (s *MemoryImageStore) Get(_ context.Context, id string) (domain.Image, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	return img, ok, nil
}

func (s *MemoryImageStore) ListByUser(_ context.Context, userID string, page, limit int) ([]domain.Image, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make([]domain.Image, 0)
	for _, img := range s.images {
		if img.UserID == userID {
			owned = append(owned, img)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	start := (page - 1) * limit
	if start >= len(owned) {
		return []domain.Image{}, nil
	}
	end := min(start+limit, len(owned))
	return owned[start:end], nil
}

func (s *MemoryImageStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, img := range s.images {
		if img.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryImageStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[id]; !ok {
		return ErrImageNotFound
	}
	delete(s.images, id)
	return nil
}

func (s *MemoryImageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}
