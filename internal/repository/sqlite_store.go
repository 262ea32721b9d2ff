package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-scantron-grader/pkg/models"

	_ "modernc.org/sqlite"
)

// SQLiteGradeStore persists each grade book as one JSON row, so an update
// replaces the whole book inside a single transaction.
type SQLiteGradeStore struct {
	db  *sql.DB
	mu  sync.Mutex // single writer
	now func() time.Time
}

// NewSQLiteGradeStore opens (and migrates) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteGradeStore(path string) (*SQLiteGradeStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteGradeStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteGradeStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS gradebooks (
		assignment_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteGradeStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteGradeStore) Load(ctx context.Context, assignmentID string) (*models.GradeBook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, revision FROM gradebooks WHERE assignment_id = ?`, assignmentID)
	book, err := scanBook(row, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, assignmentID, err)
	}
	return book, nil
}

func (s *SQLiteGradeStore) Update(ctx context.Context, assignmentID string, fn UpdateFunc) (*models.GradeBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT payload, revision FROM gradebooks WHERE assignment_id = ?`, assignmentID)
	current, err := scanBook(row, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, assignmentID, err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("update of %s returned no grade book", assignmentID)
	}
	next = next.Clone()
	next.AssignmentID = assignmentID
	next.Revision = current.Revision + 1
	next.UpdatedAt = s.now().UTC()

	payload, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode grade book: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO gradebooks (assignment_id, payload, revision, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(assignment_id) DO UPDATE SET payload = excluded.payload, revision = excluded.revision, updated_at = excluded.updated_at`,
		assignmentID, string(payload), next.Revision, next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrStoreUnavailable, assignmentID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit %s: %v", ErrStoreUnavailable, assignmentID, err)
	}
	return next, nil
}

func scanBook(row *sql.Row, assignmentID string) (*models.GradeBook, error) {
	var payload string
	var revision int64
	if err := row.Scan(&payload, &revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewGradeBook(assignmentID), nil
		}
		return nil, err
	}
	book := models.NewGradeBook(assignmentID)
	if err := json.Unmarshal([]byte(payload), book); err != nil {
		return nil, fmt.Errorf("decode grade book: %w", err)
	}
	book.Revision = revision
	return book, nil
}
