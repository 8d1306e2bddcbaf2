package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tokenscope/internal/storage"
)

func TestImageCache_PutAndGet(t *testing.T) {
	cache := NewImageCache(0)
	ctx := context.Background()

	if err := cache.Put(ctx, "https://meta/1.json", "https://img/1.png"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	image, err := cache.Get(ctx, "https://meta/1.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if image != "https://img/1.png" {
		t.Errorf("image mismatch: got %s, want https://img/1.png", image)
	}
}

func TestImageCache_NotFound(t *testing.T) {
	cache := NewImageCache(0)

	_, err := cache.Get(context.Background(), "https://meta/missing.json")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImageCache_FirstWriteWins(t *testing.T) {
	cache := NewImageCache(0)
	ctx := context.Background()

	if err := cache.Put(ctx, "u", "first"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, "u", "second"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	image, _ := cache.Get(ctx, "u")
	if image != "first" {
		t.Errorf("expected first image to win, got %s", image)
	}
}

func TestImageCache_InvalidInput(t *testing.T) {
	cache := NewImageCache(0)
	ctx := context.Background()

	if err := cache.Put(ctx, "", "img"); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty uri, got %v", err)
	}
	if err := cache.Put(ctx, "uri", ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty image, got %v", err)
	}
}

func TestImageCache_EvictsOldest(t *testing.T) {
	cache := NewImageCache(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cache.Put(ctx, fmt.Sprintf("uri%d", i), fmt.Sprintf("img%d", i)); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	if cache.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", cache.Len())
	}
	for _, uri := range []string{"uri0", "uri1"} {
		if _, err := cache.Get(ctx, uri); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("%s should have been evicted", uri)
		}
	}
	for _, uri := range []string{"uri2", "uri3", "uri4"} {
		if _, err := cache.Get(ctx, uri); err != nil {
			t.Errorf("%s should be cached: %v", uri, err)
		}
	}
}
