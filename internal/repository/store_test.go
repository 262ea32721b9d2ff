package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/pkg/models"
)

func stores(t *testing.T) map[string]GradeStore {
	t.Helper()
	sqlite, err := NewSQLiteGradeStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]GradeStore{
		"memory": NewMemoryGradeStore(),
		"sqlite": sqlite,
	}
}

func addRecord(studentID string, pct float64) UpdateFunc {
	return func(book *models.GradeBook) (*models.GradeBook, error) {
		book.Records = append(book.Records, models.GradeRecord{StudentID: studentID, Percentage: pct})
		book.Stats.Count = len(book.Records)
		return book, nil
	}
}

func TestGradeStore_LoadUnknownAssignment(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			book, err := store.Load(context.Background(), "A1")
			require.NoError(t, err)
			assert.Equal(t, "A1", book.AssignmentID)
			assert.Empty(t, book.Records)
			assert.Zero(t, book.Revision)
		})
	}
}

func TestGradeStore_UpdateAndLoad(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := store.Update(ctx, "A1", addRecord("S1", 80))
			require.NoError(t, err)
			assert.Equal(t, int64(1), first.Revision)
			assert.False(t, first.UpdatedAt.IsZero())

			_, err = store.Update(ctx, "A1", addRecord("S2", 60))
			require.NoError(t, err)

			book, err := store.Load(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), book.Revision)
			require.Len(t, book.Records, 2)
			assert.Equal(t, "S2", book.Records[1].StudentID)
			assert.Equal(t, 2, book.Stats.Count)

			other, err := store.Load(ctx, "A2")
			require.NoError(t, err)
			assert.Empty(t, other.Records)
		})
	}
}

func TestGradeStore_FailedUpdateLeavesStateIntact(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("merge failed")
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Update(ctx, "A1", addRecord("S1", 80))
			require.NoError(t, err)

			_, err = store.Update(ctx, "A1", func(book *models.GradeBook) (*models.GradeBook, error) {
				book.Records = nil
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)

			book, err := store.Load(ctx, "A1")
			require.NoError(t, err)
			assert.Len(t, book.Records, 1)
			assert.Equal(t, int64(1), book.Revision)
		})
	}
}

func TestGradeStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Update(ctx, "A1", addRecord("S1", 80))
			require.NoError(t, err)

			book, err := store.Load(ctx, "A1")
			require.NoError(t, err)
			book.Records[0].Percentage = 0

			again, err := store.Load(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, 80.0, again.Records[0].Percentage)
		})
	}
}

func TestGradeStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Update(ctx, "A1", addRecord("S", 50))
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			book, err := store.Load(ctx, "A1")
			require.NoError(t, err)
			assert.Len(t, book.Records, 10)
			assert.Equal(t, int64(10), book.Revision)
		})
	}
}

func TestMemoryGradeStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryGradeStore()
	_, err := store.Update(ctx, "A1", addRecord("S1", 80))
	assert.ErrorIs(t, err, context.Canceled)

	book, err := store.Load(context.Background(), "A1")
	require.NoError(t, err)
	assert.Empty(t, book.Records)
}
