package analyzer

import (
	"image"

	"go-scantron-grader/internal/layout"
)

// OrientationDetector decides whether a page was scanned upside down by
// comparing the solid top-right mark with the lighter bottom-left one.
type OrientationDetector struct {
	metrics MetricsCalculator
	opts    Options
}

// NewOrientationDetector creates a detector using the given thresholds
func NewOrientationDetector(metrics MetricsCalculator, opts Options) *OrientationDetector {
	return &OrientationDetector{metrics: metrics, opts: opts}
}

// Detect never fails; an inconclusive reading means no rotation
func (d *OrientationDetector) Detect(gray *image.Gray, g *layout.Geometry) Orientation {
	tr := d.metrics.DarkFraction(gray, g.TopRightMark(), d.opts.DarkPixelThreshold)
	bl := d.metrics.DarkFraction(gray, g.BottomLeftMark(), d.opts.DarkPixelThreshold)

	o := Orientation{TopRightDark: tr, BottomLeftDark: bl}
	if tr >= d.opts.MarkPresentFraction {
		o.MarksDetected++
	}
	if bl >= d.opts.MarkPresentFraction {
		o.MarksDetected++
	}
	o.Rotated = o.MarksDetected == 2 && bl-tr > d.opts.RotationMargin
	return o
}

// Correct returns the upright page. The input is left untouched; a rotated
// page gets a new buffer.
func (d *OrientationDetector) Correct(page PageImage, g *layout.Geometry) (PageImage, Orientation) {
	o := d.Detect(page.Gray, g)
	if !o.Rotated {
		return page, o
	}
	return PageImage{Number: page.Number, Gray: Rotate180(page.Gray)}, o
}
