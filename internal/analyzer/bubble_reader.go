package analyzer

import (
	"image"
	"sort"

	"go-scantron-grader/internal/layout"
	"go-scantron-grader/pkg/models"
)

// BubbleReader reads which choice was filled for each question row
type BubbleReader struct {
	metrics MetricsCalculator
	opts    Options
}

// NewBubbleReader creates a reader using the given thresholds
func NewBubbleReader(metrics MetricsCalculator, opts Options) *BubbleReader {
	return &BubbleReader{metrics: metrics, opts: opts}
}

// Read returns one reading per question 1..count. Rows are independent.
func (r *BubbleReader) Read(gray *image.Gray, g *layout.Geometry, count int) []models.BubbleReading {
	questions := g.Questions(count)
	readings := make([]models.BubbleReading, len(questions))
	for i, q := range questions {
		readings[i] = r.ReadQuestion(gray, g, q)
	}
	return readings
}

// ReadQuestion samples every choice of one row and picks the filled one, if any
func (r *BubbleReader) ReadQuestion(gray *image.Gray, g *layout.Geometry, q layout.Question) models.BubbleReading {
	reading := models.BubbleReading{
		QuestionNumber: q.Number,
		Intensities:    make([]float64, len(q.Bubbles)),
	}
	if len(q.Bubbles) == 0 {
		return reading
	}

	order := make([]int, len(q.Bubbles))
	for i, b := range q.Bubbles {
		reading.Intensities[i] = r.metrics.MeanIntensity(gray, g.SampleWindow(b))
		order[i] = i
		if reading.Intensities[i] < r.opts.FillThreshold {
			reading.MarkedChoices = append(reading.MarkedChoices, b.Label)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return reading.Intensities[order[a]] < reading.Intensities[order[b]]
	})

	darkest := reading.Intensities[order[0]]
	second := 1.0
	if len(order) > 1 {
		second = reading.Intensities[order[1]]
	}
	gap := second - darkest

	if darkest >= r.opts.FillThreshold {
		// Nothing filled: confidence grows with how clearly blank the darkest choice is.
		reading.Confidence = r.clamp((darkest - r.opts.FillThreshold) / r.opts.FullConfidenceGap)
		return reading
	}

	reading.Confidence = r.clamp(gap / r.opts.FullConfidenceGap)
	if second < r.opts.FillThreshold && gap < r.opts.AmbiguityGap {
		reading.MultipleMarks = true
		return reading
	}
	reading.Selected = q.Bubbles[order[0]].Label
	return reading
}

func (r *BubbleReader) clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
