package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/pkg/models"
)

var gradedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func record(studentID string, page int, pct float64) models.GradeRecord {
	return models.GradeRecord{
		StudentID:          studentID,
		AssignmentID:       "A1",
		Percentage:         pct,
		ScantronPageNumber: page,
		GradedAt:           gradedAt,
		Answers: []models.AnswerResult{
			{QuestionNumber: 1, QuestionID: "q1", Correct: pct >= 50},
			{QuestionNumber: 2, QuestionID: "q2", Skipped: pct < 50},
		},
	}
}

func unidentified(page int) models.UnidentifiedPage {
	return models.UnidentifiedPage{PageNumber: page, Classification: models.PageScantron, Reason: models.ReasonUnidentified, CreatedAt: gradedAt}
}

func TestMerge_ReplacesByStudent(t *testing.T) {
	existing := Merge(models.NewGradeBook("A1"), Batch{Records: []models.GradeRecord{record("S1", 1, 80)}})
	require.Len(t, existing.Records, 1)
	assert.Equal(t, 80.0, existing.Stats.AverageScore)

	merged := Merge(existing, Batch{Records: []models.GradeRecord{record("S1", 4, 90)}})

	require.Len(t, merged.Records, 1)
	assert.Equal(t, "S1", merged.Records[0].StudentID)
	assert.Equal(t, 90.0, merged.Records[0].Percentage)
	assert.Equal(t, 90.0, merged.Stats.AverageScore)
	assert.Equal(t, 80.0, existing.Records[0].Percentage, "existing book must not change")
}

func TestMerge_Idempotent(t *testing.T) {
	base := Merge(models.NewGradeBook("A1"), Batch{
		Records:      []models.GradeRecord{record("S1", 1, 80), record("S2", 2, 40)},
		Unidentified: []models.UnidentifiedPage{unidentified(3)},
	})
	batch := Batch{
		Records:      []models.GradeRecord{record("S2", 1, 70), record("S3", 2, 100)},
		Unidentified: []models.UnidentifiedPage{unidentified(5)},
	}

	once := Merge(base, batch)
	twice := Merge(once, batch)
	assert.Equal(t, once, twice)
}

func TestMerge_SequentialEqualsUnion(t *testing.T) {
	base := Merge(nil, Batch{Records: []models.GradeRecord{record("S0", 9, 55)}})
	a := Batch{Records: []models.GradeRecord{record("S1", 1, 60), record("S2", 2, 70)}}
	b := Batch{Records: []models.GradeRecord{record("S2", 1, 20), record("S3", 2, 90)}}

	sequential := Merge(Merge(base, a), b)
	union := Merge(base, Batch{Records: []models.GradeRecord{record("S1", 1, 60), record("S2", 1, 20), record("S3", 2, 90)}})

	assert.Equal(t, union.Records, sequential.Records)
	assert.Equal(t, union.Stats, sequential.Stats)
}

func TestMerge_LaterPageWinsWithinBatch(t *testing.T) {
	merged := Merge(nil, Batch{Records: []models.GradeRecord{record("S1", 5, 100), record("S1", 2, 10)}})

	require.Len(t, merged.Records, 1)
	assert.Equal(t, 5, merged.Records[0].ScantronPageNumber)
}

func TestMerge_Ledger(t *testing.T) {
	existing := Merge(models.NewGradeBook("A1"), Batch{
		Unidentified: []models.UnidentifiedPage{unidentified(2), unidentified(7)},
	})
	replacement := unidentified(7)
	replacement.Reason = models.ReasonAmbiguousName

	merged := Merge(existing, Batch{
		Records:      []models.GradeRecord{record("S1", 2, 50)},
		Unidentified: []models.UnidentifiedPage{replacement, unidentified(4)},
	})

	require.Len(t, merged.Unidentified, 2)
	assert.Equal(t, 4, merged.Unidentified[0].PageNumber)
	assert.Equal(t, 7, merged.Unidentified[1].PageNumber)
	assert.Equal(t, models.ReasonAmbiguousName, merged.Unidentified[1].Reason)
}

func TestMerge_LedgerIsScopedToBatch(t *testing.T) {
	name := "Ada Lovelace"
	pending := unidentified(7)
	pending.BatchID = "batch-1"
	pending.OCRStudentName = &name
	existing := Merge(models.NewGradeBook("A1"), Batch{Unidentified: []models.UnidentifiedPage{pending}})

	other := record("S9", 7, 100)
	other.BatchID = "batch-2"
	afterGraded := Merge(existing, Batch{Records: []models.GradeRecord{other}})
	require.Len(t, afterGraded.Unidentified, 1, "a record from another batch must not clear the page")
	assert.Equal(t, "batch-1", afterGraded.Unidentified[0].BatchID)
	require.Len(t, afterGraded.Records, 1)

	blank := unidentified(7)
	blank.BatchID = "batch-3"
	blank.Classification = models.PageBlank
	afterBlank := Merge(afterGraded, Batch{Unidentified: []models.UnidentifiedPage{blank}})
	require.Len(t, afterBlank.Unidentified, 2)
	assert.Equal(t, "batch-1", afterBlank.Unidentified[0].BatchID)
	require.NotNil(t, afterBlank.Unidentified[0].OCRStudentName)
	assert.Equal(t, "Ada Lovelace", *afterBlank.Unidentified[0].OCRStudentName)
	assert.Equal(t, "batch-3", afterBlank.Unidentified[1].BatchID)

	rerun := record("S1", 7, 80)
	rerun.BatchID = "batch-1"
	afterRerun := Merge(afterBlank, Batch{Records: []models.GradeRecord{rerun}})
	require.Len(t, afterRerun.Unidentified, 1, "the same batch grading its page clears the entry")
	assert.Equal(t, "batch-3", afterRerun.Unidentified[0].BatchID)
}

func TestComputeStats(t *testing.T) {
	records := []models.GradeRecord{record("S1", 1, 40), record("S2", 2, 60), record("S3", 3, 90), record("S4", 4, 100)}
	records[0].NeedsReview = true

	stats := ComputeStats(records)

	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 72.5, stats.AverageScore)
	assert.Equal(t, 75.0, stats.MedianScore)
	assert.Equal(t, 100.0, stats.HighScore)
	assert.Equal(t, 40.0, stats.LowScore)
	assert.InDelta(t, 27.538, stats.StandardDeviation, 0.001)
	assert.Equal(t, 1, stats.NeedsReview)

	require.Len(t, stats.Questions, 2)
	q1 := stats.Questions[0]
	assert.Equal(t, 3, q1.Correct)
	assert.Equal(t, 1, q1.Incorrect)
	assert.Equal(t, 0.75, q1.CorrectRate)
	q2 := stats.Questions[1]
	assert.Equal(t, 1, q2.Skipped)
	assert.Equal(t, 3, q2.Incorrect)
	assert.Equal(t, 0.25, q2.SkippedRate)
}

func TestComputeStats_Edges(t *testing.T) {
	empty := ComputeStats(nil)
	assert.Zero(t, empty.Count)
	assert.NotNil(t, empty.Questions)

	single := ComputeStats([]models.GradeRecord{record("S1", 1, 80)})
	assert.Equal(t, 80.0, single.MedianScore)
	assert.Zero(t, single.StandardDeviation)
}
