// Package ledger holds pages that could not be attributed to a student and
// turns them into grade records once someone supplies the student id.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go-scantron-grader/internal/grading"
	"go-scantron-grader/pkg/models"
)

var (
	ErrPageNotFound   = errors.New("page not in ledger")
	ErrAmbiguousPage  = errors.New("page number is pending in several batches")
	ErrMissingStudent = errors.New("student id is required")
	ErrMissingKey     = errors.New("answer key is required")
)

// Assignment carries what a manual resolution needs besides the student
type Assignment struct {
	StudentID    string
	AssignmentID string
	// VersionID falls back to the version guessed for the page
	VersionID string
	Key       []models.AnswerKeyEntry
	// BatchID narrows the page lookup; it may be empty when the page number
	// is pending in a single batch
	BatchID string
}

// Key identifies a pending page. Page numbers only repeat across batches.
type Key struct {
	BatchID    string
	PageNumber int
}

// KeyOf returns the ledger key of a page
func KeyOf(p models.UnidentifiedPage) Key {
	return Key{BatchID: p.BatchID, PageNumber: p.PageNumber}
}

// Ledger is the set of pending pages, unique by batch and page number
type Ledger struct {
	mu     sync.RWMutex
	pages  map[Key]models.UnidentifiedPage
	engine *grading.Engine
}

// New creates a ledger seeded with pages. Later duplicates replace earlier ones.
func New(engine *grading.Engine, pages []models.UnidentifiedPage) *Ledger {
	if engine == nil {
		engine = grading.NewEngine(0)
	}
	l := &Ledger{pages: make(map[Key]models.UnidentifiedPage, len(pages)), engine: engine}
	for _, p := range pages {
		l.pages[KeyOf(p)] = p.Clone()
	}
	return l
}

// List returns the pending pages ordered by page number, then batch
func (l *Ledger) List() []models.UnidentifiedPage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.UnidentifiedPage, 0, len(l.pages))
	for _, p := range l.pages {
		out = append(out, p.Clone())
	}
	SortPages(out)
	return out
}

// SortPages orders pages by page number, then batch id
func SortPages(pages []models.UnidentifiedPage) {
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].PageNumber != pages[j].PageNumber {
			return pages[i].PageNumber < pages[j].PageNumber
		}
		return pages[i].BatchID < pages[j].BatchID
	})
}

// Len returns the number of pending pages
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pages)
}

// find locates a page. An empty batchID matches any batch as long as only
// one batch has that page number pending.
func (l *Ledger) find(pageNumber int, batchID string) (Key, error) {
	if batchID != "" {
		k := Key{BatchID: batchID, PageNumber: pageNumber}
		if _, ok := l.pages[k]; !ok {
			return Key{}, fmt.Errorf("page %d of batch %s: %w", pageNumber, batchID, ErrPageNotFound)
		}
		return k, nil
	}

	var found []Key
	for k := range l.pages {
		if k.PageNumber == pageNumber {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		return Key{}, fmt.Errorf("page %d: %w", pageNumber, ErrPageNotFound)
	case 1:
		return found[0], nil
	default:
		return Key{}, fmt.Errorf("page %d (%d batches): %w", pageNumber, len(found), ErrAmbiguousPage)
	}
}

// Get returns a pending page. batchID may be empty, see Resolve.
func (l *Ledger) Get(pageNumber int, batchID string) (models.UnidentifiedPage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	k, err := l.find(pageNumber, batchID)
	if err != nil {
		return models.UnidentifiedPage{}, err
	}
	return l.pages[k].Clone(), nil
}

// Add stores a page, replacing a pending page with the same batch and number
func (l *Ledger) Add(page models.UnidentifiedPage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[KeyOf(page)] = page.Clone()
}

// Remove drops a page and returns it
func (l *Ledger) Remove(pageNumber int, batchID string) (models.UnidentifiedPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k, err := l.find(pageNumber, batchID)
	if err != nil {
		return models.UnidentifiedPage{}, err
	}
	p := l.pages[k]
	delete(l.pages, k)
	return p, nil
}

// Resolve removes a page and grades its stored readings for the given
// student with the same rules as an automatically identified page. The
// page stays in the ledger when the request is invalid or a.BatchID is
// empty and the page number is pending in more than one batch.
func (l *Ledger) Resolve(pageNumber int, a Assignment) (models.GradeRecord, error) {
	studentID := strings.TrimSpace(a.StudentID)
	if studentID == "" {
		return models.GradeRecord{}, ErrMissingStudent
	}
	if len(a.Key) == 0 {
		return models.GradeRecord{}, ErrMissingKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k, err := l.find(pageNumber, a.BatchID)
	if err != nil {
		return models.GradeRecord{}, err
	}
	page := l.pages[k]

	version := a.VersionID
	if version == "" {
		version = page.VersionID
	}
	identity := models.Identity{
		AssignmentID:  a.AssignmentID,
		StudentID:     studentID,
		VersionID:     version,
		SchemaVersion: 1,
		QuestionCount: len(a.Key),
	}
	if page.DecodedIdentity != nil && page.DecodedIdentity.AssignmentID == a.AssignmentID {
		identity.SectionID = page.DecodedIdentity.SectionID
		identity.UnitID = page.DecodedIdentity.UnitID
		identity.VariantID = page.DecodedIdentity.VariantID
	}

	flags := append([]models.GradeFlag{models.FlagManuallyResolved}, page.Flags...)
	record := l.engine.Grade(grading.Submission{
		StudentID:   studentID,
		Identity:    identity,
		Source:      models.SourceManual,
		Readings:    grading.TrimReadings(page.Readings, maxQuestion(a.Key)),
		Key:         a.Key,
		PageNumber:  page.PageNumber,
		BatchID:     page.BatchID,
		Flags:       flags,
		ReviewNotes: ReviewNote(studentID, page.OCRStudentName),
	})

	delete(l.pages, k)
	return record, nil
}

// ReviewNote describes a manual assignment, quoting the OCR guess when there was one
func ReviewNote(studentID string, ocrName *string) string {
	note := "Manually assigned to student " + studentID
	if ocrName != nil && strings.TrimSpace(*ocrName) != "" {
		note += fmt.Sprintf(" (OCR read %q)", strings.TrimSpace(*ocrName))
	}
	return note
}

func maxQuestion(key []models.AnswerKeyEntry) int {
	n := 0
	for _, e := range key {
		n = max(n, e.QuestionNumber)
	}
	return n
}
