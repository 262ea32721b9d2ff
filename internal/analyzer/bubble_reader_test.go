package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/internal/layout"
	"go-scantron-grader/internal/sheettest"
)

func readSheet(t *testing.T, sheet sheettest.Sheet, count int) []readingView {
	t.Helper()
	gray := sheettest.Render(sheet)
	g, err := layout.NewGeometry(layout.DefaultTemplate(), gray.Bounds().Dx(), gray.Bounds().Dy())
	require.NoError(t, err)

	reader := NewBubbleReader(NewMetricsCalculator(), DefaultOptions())
	readings := reader.Read(gray, g, count)
	out := make([]readingView, len(readings))
	for i, r := range readings {
		out[i] = readingView{r.QuestionNumber, r.Selected, r.Confidence, r.MultipleMarks, r.MarkedChoices}
	}
	return out
}

// readingView drops the raw intensities to keep assertions short
type readingView struct {
	Question      int
	Selected      string
	Confidence    float64
	MultipleMarks bool
	Marked        []string
}

func TestBubbleReader_SingleMark(t *testing.T) {
	readings := readSheet(t, sheettest.Sheet{Answers: map[int]string{1: "B", 2: "D"}}, 3)
	require.Len(t, readings, 3)

	assert.Equal(t, 1, readings[0].Question)
	assert.Equal(t, "B", readings[0].Selected)
	assert.False(t, readings[0].MultipleMarks)
	assert.InDelta(t, 1.0, readings[0].Confidence, 0.01)
	assert.Equal(t, []string{"B"}, readings[0].Marked)

	assert.Equal(t, "D", readings[1].Selected)
}

func TestBubbleReader_BlankRowIsConfidentlyEmpty(t *testing.T) {
	readings := readSheet(t, sheettest.Sheet{}, 1)

	assert.Empty(t, readings[0].Selected)
	assert.False(t, readings[0].MultipleMarks)
	assert.Empty(t, readings[0].Marked)
	assert.InDelta(t, 1.0, readings[0].Confidence, 0.02)
}

func TestBubbleReader_MultipleMarks(t *testing.T) {
	readings := readSheet(t, sheettest.Sheet{
		Shades: map[int]map[string]uint8{1: {"A": sheettest.Pencil, "C": sheettest.Pencil}},
	}, 1)

	assert.Empty(t, readings[0].Selected, "ambiguous rows must not pick a choice")
	assert.True(t, readings[0].MultipleMarks)
	assert.Equal(t, []string{"A", "C"}, readings[0].Marked)
	assert.Less(t, readings[0].Confidence, 0.2)
}

func TestBubbleReader_ClearlyDarkerMarkWins(t *testing.T) {
	// A firm mark next to a half-hearted one: both below the fill threshold
	// but far enough apart to pick the darker one
	readings := readSheet(t, sheettest.Sheet{
		Shades: map[int]map[string]uint8{1: {"A": sheettest.Pencil, "C": 100}},
	}, 1)

	assert.Equal(t, "A", readings[0].Selected)
	assert.False(t, readings[0].MultipleMarks)
	assert.Equal(t, []string{"A", "C"}, readings[0].Marked)
	assert.Greater(t, readings[0].Confidence, 0.3)
	assert.Less(t, readings[0].Confidence, 0.8)
}

func TestBubbleReader_ErasedMarkIsIgnored(t *testing.T) {
	readings := readSheet(t, sheettest.Sheet{
		Shades: map[int]map[string]uint8{1: {"B": 200}},
	}, 1)

	assert.Empty(t, readings[0].Selected)
	assert.Empty(t, readings[0].Marked)
	assert.Less(t, readings[0].Confidence, 1.0)
}

func TestBubbleReader_ConfidenceBounds(t *testing.T) {
	sheet := sheettest.Sheet{
		Answers: map[int]string{1: "A", 4: "C"},
		Shades: map[int]map[string]uint8{
			2: {"A": 40, "B": 60},
			3: {"D": 150},
			5: {"A": 100, "B": 120, "C": 140},
		},
	}
	for _, r := range readSheet(t, sheet, 30) {
		assert.GreaterOrEqual(t, r.Confidence, 0.0, "question %d", r.Question)
		assert.LessOrEqual(t, r.Confidence, 1.0, "question %d", r.Question)
		if r.MultipleMarks {
			assert.Empty(t, r.Selected)
		}
	}
}

func TestBubbleReader_CountClamped(t *testing.T) {
	assert.Len(t, readSheet(t, sheettest.Sheet{}, 99), layout.DefaultTemplate().MaxQuestions)
	assert.Empty(t, readSheet(t, sheettest.Sheet{}, 0))
}

func TestBubbleReader_IntensitiesPerChoice(t *testing.T) {
	gray := sheettest.Render(sheettest.Sheet{Answers: map[int]string{1: "C"}})
	g, err := layout.NewGeometry(layout.DefaultTemplate(), gray.Bounds().Dx(), gray.Bounds().Dy())
	require.NoError(t, err)

	reading := NewBubbleReader(NewMetricsCalculator(), DefaultOptions()).ReadQuestion(gray, g, g.Question(1))
	require.Len(t, reading.Intensities, 4)
	assert.Less(t, reading.Intensities[2], 0.3)
	for _, i := range []int{0, 1, 3} {
		assert.Greater(t, reading.Intensities[i], 0.9)
	}
}
