package analyzer

import (
	"image"

	"go-scantron-grader/pkg/models"
)

// PageAnalyzer turns raw page images into upright, measured pages and reads their bubbles
type PageAnalyzer interface {
	// Prepare corrects orientation and measures the page. It fails only for
	// images the template cannot be projected onto.
	Prepare(page PageImage) (*PreparedPage, error)

	// ReadBubbles reads questions 1..count, clamped to the template maximum
	ReadBubbles(page *PreparedPage, count int) []models.BubbleReading

	// Classify guesses what an unidentified page is
	Classify(page *PreparedPage, readings []models.BubbleReading) models.PageClassification

	// Lifecycle management
	Close() error
}

// MetricsCalculator handles pixel measurements
type MetricsCalculator interface {
	CalculatePageMetrics(gray *image.Gray, darkThreshold uint8) PageMetrics
	CalculateLaplacianVariance(gray *image.Gray) float64
	DarkFraction(gray *image.Gray, r image.Rectangle, threshold uint8) float64
	MeanIntensity(gray *image.Gray, r image.Rectangle) float64
}

// CodePatternDetector reports whether a window looks like it holds a QR code.
// It does not decode anything.
type CodePatternDetector interface {
	DetectCodePattern(gray *image.Gray, region image.Rectangle) bool
}
