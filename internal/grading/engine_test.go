package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/pkg/models"
)

func identity() models.Identity {
	return models.Identity{AssignmentID: "A1", StudentID: "S1", VersionID: "V1", SchemaVersion: 1, QuestionCount: 3}
}

func key(answers ...string) []models.AnswerKeyEntry {
	out := make([]models.AnswerKeyEntry, len(answers))
	for i, a := range answers {
		out[i] = models.AnswerKeyEntry{QuestionNumber: i + 1, QuestionID: "q" + string(rune('1'+i)), CorrectAnswer: a, Points: 1}
	}
	return out
}

func reading(q int, selected string, confidence float64) models.BubbleReading {
	return models.BubbleReading{QuestionNumber: q, Selected: selected, Confidence: confidence}
}

func TestGrade_CorrectSelection(t *testing.T) {
	rec := NewEngine(0).Grade(Submission{
		StudentID:  "S1",
		Identity:   identity(),
		Source:     models.SourceCode,
		Readings:   []models.BubbleReading{reading(1, "B", 0.9)},
		Key:        []models.AnswerKeyEntry{{QuestionNumber: 1, QuestionID: "q1", CorrectAnswer: "B", Points: 1}},
		PageNumber: 3,
	})

	require.Len(t, rec.Answers, 1)
	assert.True(t, rec.Answers[0].Correct)
	assert.Equal(t, 1, rec.RawScore)
	assert.Equal(t, 100.0, rec.Percentage)
	assert.Equal(t, 3, rec.ScantronPageNumber)
	assert.False(t, rec.NeedsReview)
	assert.Empty(t, rec.Flags)
}

func TestGrade_Scoring(t *testing.T) {
	k := key("A", "b", "C")
	k[2].Points = 2.5

	rec := NewEngine(0).Grade(Submission{
		StudentID: "S1",
		Identity:  identity(),
		Source:    models.SourceCode,
		Readings:  []models.BubbleReading{reading(1, "a", 0.9), reading(2, "C", 0.9), reading(3, "C", 0.9)},
		Key:       k,
	})

	assert.Equal(t, 2, rec.RawScore)
	assert.Equal(t, 3, rec.TotalQuestions)
	assert.InDelta(t, 66.666, rec.Percentage, 0.01)
	assert.Equal(t, 3.5, rec.EarnedPoints)
	assert.Equal(t, 4.5, rec.PossiblePoints)
	assert.Equal(t, "A", rec.Answers[0].Selected)
	assert.Equal(t, "B", rec.Answers[1].CorrectAnswer)
	assert.False(t, rec.Answers[1].Correct)
}

func TestGrade_UnmatchedQuestionsAreSkippedAndFlagged(t *testing.T) {
	rec := NewEngine(0).Grade(Submission{
		Identity: identity(),
		Source:   models.SourceCode,
		Readings: []models.BubbleReading{reading(1, "A", 0.9), reading(4, "A", 0.9)},
		Key:      key("A", "B"),
	})

	assert.Equal(t, 1, rec.TotalQuestions)
	assert.Equal(t, 100.0, rec.Percentage)
	assert.True(t, rec.HasFlag(models.FlagUnmatchedQuestions))
	assert.False(t, rec.NeedsReview)
}

func TestGrade_NothingGradable(t *testing.T) {
	rec := NewEngine(0).Grade(Submission{Identity: identity(), Source: models.SourceCode, Key: key("A")})

	assert.Zero(t, rec.TotalQuestions)
	assert.Zero(t, rec.Percentage)
	assert.True(t, rec.HasFlag(models.FlagUnmatchedQuestions))
}

func TestGrade_ReviewTriggers(t *testing.T) {
	tests := []struct {
		name   string
		sub    Submission
		flag   models.GradeFlag
		review bool
	}{
		{
			name: "multiple marks",
			sub: Submission{Source: models.SourceCode, Key: key("A"), Readings: []models.BubbleReading{
				{QuestionNumber: 1, MultipleMarks: true, Confidence: 0.9, MarkedChoices: []string{"A", "B"}},
			}},
			flag:   models.FlagMultipleMarks,
			review: true,
		},
		{
			name:   "low confidence",
			sub:    Submission{Source: models.SourceCode, Key: key("A", "B"), Readings: []models.BubbleReading{reading(1, "A", 0.5), reading(2, "B", 0.6)}},
			flag:   models.FlagLowConfidence,
			review: true,
		},
		{
			name:   "ocr identified",
			sub:    Submission{Source: models.SourceOCR, Key: key("A"), Readings: []models.BubbleReading{reading(1, "A", 1)}},
			flag:   models.FlagOCRIdentified,
			review: true,
		},
		{
			name:   "unanswered only",
			sub:    Submission{Source: models.SourceCode, Key: key("A"), Readings: []models.BubbleReading{reading(1, "", 0.95)}},
			flag:   models.FlagUnanswered,
			review: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sub.Identity = identity()
			rec := NewEngine(0).Grade(tt.sub)
			assert.True(t, rec.HasFlag(tt.flag), "flags: %v", rec.Flags)
			assert.Equal(t, tt.review, rec.NeedsReview)
		})
	}
}

func TestGrade_CarriesPageFlags(t *testing.T) {
	rec := NewEngine(0).Grade(Submission{
		Identity: identity(),
		Source:   models.SourceCode,
		Key:      key("A"),
		Readings: []models.BubbleReading{reading(1, "A", 1)},
		Flags:    []models.GradeFlag{models.FlagOrientationCorrected, models.FlagOrientationCorrected},
	})
	assert.Equal(t, []models.GradeFlag{models.FlagOrientationCorrected}, rec.Flags)
	assert.False(t, rec.NeedsReview)
}

func TestPercentageBounds(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 10))
	assert.Equal(t, 0.0, Percentage(3, 0))
	assert.Equal(t, 50.0, Percentage(5, 10))
	assert.Equal(t, 100.0, Percentage(12, 10))
}

func TestTrimReadings(t *testing.T) {
	readings := []models.BubbleReading{reading(1, "A", 1), reading(2, "B", 1), reading(3, "C", 1)}

	assert.Len(t, TrimReadings(readings, 2), 2)
	assert.Len(t, TrimReadings(readings, 0), 3)
	assert.Len(t, TrimReadings(readings, 10), 3)
}
