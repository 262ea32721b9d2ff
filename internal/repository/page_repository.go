package repository

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"go-scantron-grader/internal/storage"
	"go-scantron-grader/pkg/validation"
)

// SourcePageRepository routes page locations to the matching storage
// backend: http(s) URLs to the fetcher, azblob:// URLs to blob storage and
// file:// URLs or bare paths to local files.
type SourcePageRepository struct {
	fetcher   storage.PageFetcher
	blobs     storage.BlobStorage
	files     *storage.FileStorage
	validator *validation.URLValidator
}

// NewPageRepository creates a repository. blobs and files may be nil to
// disable those sources.
func NewPageRepository(fetcher storage.PageFetcher, blobs storage.BlobStorage, files *storage.FileStorage) *SourcePageRepository {
	return &SourcePageRepository{
		fetcher:   fetcher,
		blobs:     blobs,
		files:     files,
		validator: validation.NewURLValidator(),
	}
}

// FetchPage retrieves a page from whichever source its location names
func (r *SourcePageRepository) FetchPage(ctx context.Context, pageURL string) (image.Image, error) {
	switch scheme(pageURL) {
	case "http", "https":
		if r.fetcher == nil {
			return nil, fmt.Errorf("%w: http", ErrSourceNotConfigured)
		}
		return r.fetcher.FetchPage(ctx, pageURL)
	case storage.BlobScheme:
		if r.blobs == nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotConfigured, storage.BlobScheme)
		}
		return r.blobs.GetPage(ctx, pageURL)
	case "file", "":
		if r.files == nil {
			return nil, fmt.Errorf("%w: file", ErrSourceNotConfigured)
		}
		return r.files.GetPage(ctx, pageURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPageURL, pageURL)
	}
}

// ValidatePageURL validates if the provided location is acceptable
func (r *SourcePageRepository) ValidatePageURL(pageURL string) error {
	switch scheme(pageURL) {
	case "file", "":
		if r.files == nil {
			return fmt.Errorf("%w: local files are disabled", ErrInvalidPageURL)
		}
		if strings.TrimSpace(pageURL) == "" {
			return ErrInvalidPageURL
		}
		return nil
	case storage.BlobScheme:
		if r.blobs == nil {
			return fmt.Errorf("%w: blob storage is not configured", ErrInvalidPageURL)
		}
	case "http", "https":
		if r.fetcher == nil {
			return fmt.Errorf("%w: http sources are disabled", ErrInvalidPageURL)
		}
	}
	return r.validator.ValidatePageURL(pageURL)
}

func scheme(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "invalid"
	}
	return strings.ToLower(u.Scheme)
}
