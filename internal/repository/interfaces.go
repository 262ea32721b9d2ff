package repository

import (
	"context"
	"image"

	"go-scantron-grader/pkg/models"
)

// PageRepository defines the interface for page image access
type PageRepository interface {
	// FetchPage retrieves a rasterized page from a URL or path
	FetchPage(ctx context.Context, pageURL string) (image.Image, error)

	// ValidatePageURL validates if the provided location is acceptable
	ValidatePageURL(pageURL string) error
}

// UpdateFunc receives a private copy of the current grade book and returns
// the book to persist. Returning an error aborts the update.
type UpdateFunc func(current *models.GradeBook) (*models.GradeBook, error)

// GradeStore persists one grade book per assignment. Update is atomic: the
// new book becomes visible to readers all at once or not at all, and
// concurrent updates to one assignment are serialized.
type GradeStore interface {
	// Load returns the stored book, or an empty book for an unknown assignment
	Load(ctx context.Context, assignmentID string) (*models.GradeBook, error)

	// Update applies fn to the current book and stores the result with the
	// next revision number
	Update(ctx context.Context, assignmentID string, fn UpdateFunc) (*models.GradeBook, error)

	// Close releases the store's resources
	Close() error
}

// AnswerKeySource provides answer keys per assessment version
type AnswerKeySource interface {
	// AnswerKey returns the ordered key for one version
	AnswerKey(ctx context.Context, assignmentID, versionID string) ([]models.AnswerKeyEntry, error)

	// Versions returns every key known for an assignment
	Versions(ctx context.Context, assignmentID string) (models.AnswerKeys, error)
}
