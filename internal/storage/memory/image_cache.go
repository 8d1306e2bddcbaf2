package memory

import (
	"context"
	"sync"

	"tokenscope/internal/storage"
)

// DefaultImageCacheSize bounds the number of cached URIs.
const DefaultImageCacheSize = 1024

// ImageCache is an in-memory implementation of storage.ImageCache.
// When full, the oldest insertion is evicted.
type ImageCache struct {
	mu      sync.RWMutex
	maxSize int
	byURI   map[string]string
	order   []string // insertion order, oldest first
}

// NewImageCache creates a cache holding at most maxSize URIs
// (DefaultImageCacheSize if <= 0).
func NewImageCache(maxSize int) *ImageCache {
	if maxSize <= 0 {
		maxSize = DefaultImageCacheSize
	}
	return &ImageCache{
		maxSize: maxSize,
		byURI:   make(map[string]string),
	}
}

// Put records the image for uri. Returns ErrDuplicateKey if uri exists.
func (c *ImageCache) Put(_ context.Context, uri, image string) error {
	if uri == "" || image == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byURI[uri]; exists {
		return storage.ErrDuplicateKey
	}

	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byURI, oldest)
	}

	c.byURI[uri] = image
	c.order = append(c.order, uri)
	return nil
}

// Get returns the image for uri. Returns ErrNotFound if not cached.
func (c *ImageCache) Get(_ context.Context, uri string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	image, exists := c.byURI[uri]
	if !exists {
		return "", storage.ErrNotFound
	}
	return image, nil
}

// Len returns the number of cached URIs.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byURI)
}

var _ storage.ImageCache = (*ImageCache)(nil)
