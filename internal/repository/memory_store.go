package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-scantron-grader/pkg/models"
)

// MemoryGradeStore keeps grade books in process memory
type MemoryGradeStore struct {
	mu    sync.RWMutex
	books map[string]*models.GradeBook
	now   func() time.Time
}

// NewMemoryGradeStore creates an empty in-memory store
func NewMemoryGradeStore() *MemoryGradeStore {
	return &MemoryGradeStore{books: make(map[string]*models.GradeBook), now: time.Now}
}

func (s *MemoryGradeStore) Load(ctx context.Context, assignmentID string) (*models.GradeBook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if book, ok := s.books[assignmentID]; ok {
		return book.Clone(), nil
	}
	return models.NewGradeBook(assignmentID), nil
}

func (s *MemoryGradeStore) Update(ctx context.Context, assignmentID string, fn UpdateFunc) (*models.GradeBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, ok := s.books[assignmentID]
	if !ok {
		current = models.NewGradeBook(assignmentID)
	}
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("update of %s returned no grade book", assignmentID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next = next.Clone()
	next.AssignmentID = assignmentID
	next.Revision = current.Revision + 1
	next.UpdatedAt = s.now().UTC()
	s.books[assignmentID] = next
	return next.Clone(), nil
}

func (s *MemoryGradeStore) Close() error {
	return nil
}
