package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/internal/grading"
	"go-scantron-grader/pkg/models"
)

func pendingPage(page int, ocrName string) models.UnidentifiedPage {
	p := models.UnidentifiedPage{
		PageNumber:     page,
		Classification: models.PageScantron,
		Reason:         models.ReasonUnidentified,
		VersionID:      "V1",
		Flags:          []models.GradeFlag{models.FlagOrientationCorrected},
		Readings: []models.BubbleReading{
			{QuestionNumber: 1, Selected: "B", Confidence: 0.9},
			{QuestionNumber: 2, Selected: "C", Confidence: 0.9},
			{QuestionNumber: 3, Confidence: 0.95},
			{QuestionNumber: 4, Confidence: 0.95},
		},
	}
	if ocrName != "" {
		p.OCRStudentName = &ocrName
	}
	return p
}

var answerKey = []models.AnswerKeyEntry{
	{QuestionNumber: 1, QuestionID: "q1", CorrectAnswer: "B", Points: 1},
	{QuestionNumber: 2, QuestionID: "q2", CorrectAnswer: "D", Points: 1},
}

func TestResolve_ManualAssignment(t *testing.T) {
	l := New(grading.NewEngine(0), []models.UnidentifiedPage{pendingPage(7, "Ada Lovelace"), pendingPage(8, "")})

	rec, err := l.Resolve(7, Assignment{StudentID: "S42", AssignmentID: "A1", Key: answerKey})
	require.NoError(t, err)

	_, err = l.Get(7, "")
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.Equal(t, 1, l.Len())

	assert.Equal(t, "S42", rec.StudentID)
	assert.Equal(t, 7, rec.ScantronPageNumber)
	assert.Equal(t, models.SourceManual, rec.Source)
	assert.Equal(t, "V1", rec.VersionID)
	assert.Contains(t, rec.ReviewNotes, "Manually assigned to student S42")
	assert.Contains(t, rec.ReviewNotes, "Ada Lovelace")
	assert.True(t, rec.HasFlag(models.FlagManuallyResolved))
	assert.True(t, rec.HasFlag(models.FlagOrientationCorrected))
	assert.False(t, rec.HasFlag(models.FlagUnmatchedQuestions), "readings beyond the key are trimmed")

	assert.Equal(t, 2, rec.TotalQuestions)
	assert.Equal(t, 1, rec.RawScore)
	assert.Equal(t, 50.0, rec.Percentage)
}

func TestResolve_MatchesAutomaticGrading(t *testing.T) {
	engine := grading.NewEngine(0)
	page := pendingPage(3, "")
	l := New(engine, []models.UnidentifiedPage{page})

	manual, err := l.Resolve(3, Assignment{StudentID: "S1", AssignmentID: "A1", Key: answerKey})
	require.NoError(t, err)

	auto := engine.Grade(grading.Submission{
		StudentID: "S1",
		Identity:  models.Identity{AssignmentID: "A1", StudentID: "S1", VersionID: "V1"},
		Source:    models.SourceCode,
		Readings:  grading.TrimReadings(page.Readings, 2),
		Key:       answerKey,
	})
	assert.Equal(t, auto.Answers, manual.Answers)
	assert.Equal(t, auto.Percentage, manual.Percentage)
}

func TestResolve_Errors(t *testing.T) {
	l := New(nil, []models.UnidentifiedPage{pendingPage(1, "")})

	_, err := l.Resolve(1, Assignment{StudentID: "  ", Key: answerKey})
	assert.ErrorIs(t, err, ErrMissingStudent)

	_, err = l.Resolve(1, Assignment{StudentID: "S1"})
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = l.Resolve(99, Assignment{StudentID: "S1", Key: answerKey})
	assert.ErrorIs(t, err, ErrPageNotFound)

	assert.Equal(t, 1, l.Len(), "failed resolutions keep the page")
}

func TestLedger_AddReplacesByPageNumber(t *testing.T) {
	l := New(nil, nil)
	l.Add(pendingPage(2, "first"))
	l.Add(pendingPage(1, ""))
	l.Add(pendingPage(2, "second"))

	pages := l.List()
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "second", *pages[1].OCRStudentName)

	removed, err := l.Remove(2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, removed.PageNumber)
	_, err = l.Remove(2, "")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func batchPage(batchID string, page int, ocrName string) models.UnidentifiedPage {
	p := pendingPage(page, ocrName)
	p.BatchID = batchID
	return p
}

func TestLedger_SamePageInSeveralBatches(t *testing.T) {
	l := New(nil, []models.UnidentifiedPage{batchPage("b1", 7, "Ada"), batchPage("b2", 7, "Grace"), batchPage("b2", 3, "")})
	assert.Equal(t, 3, l.Len())

	pages := l.List()
	require.Len(t, pages, 3)
	assert.Equal(t, 3, pages[0].PageNumber)
	assert.Equal(t, "b1", pages[1].BatchID)
	assert.Equal(t, "b2", pages[2].BatchID)

	_, err := l.Get(7, "")
	assert.ErrorIs(t, err, ErrAmbiguousPage)
	_, err = l.Resolve(7, Assignment{StudentID: "S1", AssignmentID: "A1", Key: answerKey})
	assert.ErrorIs(t, err, ErrAmbiguousPage)
	_, err = l.Get(7, "b3")
	assert.ErrorIs(t, err, ErrPageNotFound)

	p, err := l.Get(3, "")
	require.NoError(t, err)
	assert.Equal(t, "b2", p.BatchID)

	rec, err := l.Resolve(7, Assignment{StudentID: "S1", AssignmentID: "A1", Key: answerKey, BatchID: "b2"})
	require.NoError(t, err)
	assert.Equal(t, "b2", rec.BatchID)
	assert.Contains(t, rec.ReviewNotes, "Grace")

	left, err := l.Get(7, "")
	require.NoError(t, err)
	assert.Equal(t, "b1", left.BatchID)
}

func TestLedger_ReturnsCopies(t *testing.T) {
	l := New(nil, []models.UnidentifiedPage{pendingPage(1, "Ada")})

	p, err := l.Get(1, "")
	require.NoError(t, err)
	p.Readings[0].Selected = "Z"
	*p.OCRStudentName = "changed"

	again, err := l.Get(1, "")
	require.NoError(t, err)
	assert.Equal(t, "B", again.Readings[0].Selected)
	assert.Equal(t, "Ada", *again.OCRStudentName)
}

func TestReviewNote(t *testing.T) {
	assert.Equal(t, "Manually assigned to student S42", ReviewNote("S42", nil))
	name := "Ada"
	assert.Equal(t, `Manually assigned to student S42 (OCR read "Ada")`, ReviewNote("S42", &name))
}
