package analyzer

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/internal/layout"
	"go-scantron-grader/internal/sheettest"
)

func newOrientationFixture(t *testing.T, gray *image.Gray) (*OrientationDetector, *layout.Geometry) {
	t.Helper()
	g, err := layout.NewGeometry(layout.DefaultTemplate(), gray.Bounds().Dx(), gray.Bounds().Dy())
	require.NoError(t, err)
	return NewOrientationDetector(NewMetricsCalculator(), DefaultOptions()), g
}

func TestOrientation_UprightPage(t *testing.T) {
	gray := sheettest.Render(sheettest.Sheet{Answers: map[int]string{1: "A"}})
	d, g := newOrientationFixture(t, gray)

	o := d.Detect(gray, g)
	assert.False(t, o.Rotated)
	assert.Equal(t, 2, o.MarksDetected)
	assert.InDelta(t, 1.0, o.TopRightDark, 0.01)
	assert.Greater(t, o.BottomLeftDark, 0.35)
	assert.Less(t, o.BottomLeftDark, 0.85)
}

func TestOrientation_UpsideDownPageIsCorrected(t *testing.T) {
	gray := sheettest.Render(sheettest.Sheet{Answers: map[int]string{1: "B"}, UpsideDown: true})
	before := bytes.Clone(gray.Pix)
	d, g := newOrientationFixture(t, gray)

	page, o := d.Correct(PageImage{Number: 3, Gray: gray}, g)
	require.True(t, o.Rotated)
	assert.Equal(t, 3, page.Number)
	assert.Equal(t, before, gray.Pix, "input buffer must not change")
	assert.NotSame(t, gray, page.Gray)

	// Correcting an already corrected page is a no-op
	again, o2 := d.Correct(page, g)
	assert.False(t, o2.Rotated)
	assert.Same(t, page.Gray, again.Gray)

	upright := sheettest.Render(sheettest.Sheet{Answers: map[int]string{1: "B"}})
	assert.Equal(t, upright.Pix, page.Gray.Pix)
}

func TestOrientation_InconclusiveDefaultsToUpright(t *testing.T) {
	tests := []struct {
		name  string
		gray  *image.Gray
		marks int
	}{
		{"no marks", sheettest.Render(sheettest.Sheet{NoMarks: true}), 0},
		{"blank page", sheettest.Blank(), 0},
		{"letter", sheettest.Letter(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, g := newOrientationFixture(t, tt.gray)
			o := d.Detect(tt.gray, g)
			assert.False(t, o.Rotated)
			assert.Equal(t, tt.marks, o.MarksDetected)
		})
	}
}

func TestRotate180_Twice(t *testing.T) {
	gray := sheettest.Render(sheettest.Sheet{Answers: map[int]string{2: "C"}, Width: 612, Height: 792})
	assert.Equal(t, gray.Pix, Rotate180(Rotate180(gray)).Pix)
}
