// Package storage defines the in-memory session stores used by the client.
package storage

import "context"

// ImageCache maps descriptor URIs to resolved image URLs.
type ImageCache interface {
	// Put records the image for uri. Returns ErrDuplicateKey if uri is
	// already cached; the first resolved image wins.
	Put(ctx context.Context, uri, image string) error

	// Get returns the cached image for uri. Returns ErrNotFound if absent.
	Get(ctx context.Context, uri string) (string, error)

	// Len returns the number of cached URIs.
	Len() int
}
