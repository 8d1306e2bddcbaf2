// Package metadata resolves off-chain token descriptor documents.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"tokenscope/internal/observability"
	"tokenscope/internal/storage"
)

// Default configuration values.
const (
	DefaultTimeout = 10 * time.Second
	MaxBodyBytes   = 1 << 20
)

// ErrUnsupportedScheme is returned for URIs that are not http or https.
var ErrUnsupportedScheme = errors.New("unsupported uri scheme")

// Document is the off-chain token descriptor.
type Document struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Fetcher fetches descriptor documents over plain HTTP.
type Fetcher struct {
	client *http.Client
	cache  storage.ImageCache
	logger *zap.Logger
}

// Option configures Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-document fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithCache caches resolved images by URI.
func WithCache(cache storage.ImageCache) Option {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a metadata fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: DefaultTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and decodes the document at uri.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (*Document, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	observability.RecordMetadataFetch(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodyBytes))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxBodyBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Enrich resolves uri to its image URL. Every failure resolves to
// ok=false; nothing is returned to the caller as an error.
func (f *Fetcher) Enrich(ctx context.Context, uri string) (string, bool) {
	if f.cache != nil {
		if image, err := f.cache.Get(ctx, uri); err == nil {
			return image, true
		}
	}

	doc, err := f.Fetch(ctx, uri)
	if err != nil {
		f.logger.Debug("metadata fetch failed", zap.String("uri", uri), zap.Error(err))
		return "", false
	}
	if doc.Image == "" {
		return "", false
	}

	if f.cache != nil {
		// A concurrent fetch of the same uri may have won; either image is fine.
		_ = f.cache.Put(ctx, uri, doc.Image)
	}
	return doc.Image, true
}
