package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/imagekiln/imagekiln/internal/domain"
)

func TestMemoryImageStorePagination(t *testing.T) {
	s := NewMemoryImageStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		img := domain.Image{
			ID:        fmt.Sprintf("img-%02d", i),
			UserID:    "user-1",
			Filename:  "f.png",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Create(ctx, img); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.Create(ctx, domain.Image{ID: "other", UserID: "user-2", CreatedAt: base}); err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := s.CountByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 25 {
		t.Fatalf("expected 25 images for user-1, got %d", count)
	}

	page1, err := s.ListByUser(ctx, "user-1", 1, 10)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 10 {
		t.Fatalf("expected 10 images on page 1, got %d", len(page1))
	}
	if !page1[0].CreatedAt.After(page1[9].CreatedAt) {
		t.Fatal("expected newest-first ordering")
	}

	page3, err := s.ListByUser(ctx, "user-1", 3, 10)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3) != 5 {
		t.Fatalf("expected 5 images on page 3, got %d", len(page3))
	}

	empty, err := s.ListByUser(ctx, "user-1", 4, 10)
	if err != nil {
		t.Fatalf("list page 4: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page 4, got %d images", len(empty))
	}
}

func TestMemoryImageStoreDelete(t *testing.T) {
	s := NewMemoryImageStore()
	ctx := context.Background()

	if err := s.Create(ctx, domain.Image{ID: "img-1", UserID: "user-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, "img-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "img-1"); ok {
		t.Fatal("expected image to be gone after delete")
	}
	if err := s.Delete(ctx, "img-1"); err != ErrImageNotFound {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}
