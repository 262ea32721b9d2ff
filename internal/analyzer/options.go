package analyzer

import "fmt"

// Options holds the thresholds used when reading a page
type Options struct {
	// Orientation
	DarkPixelThreshold  uint8   // pixel values below this count as ink
	MarkPresentFraction float64 // dark fraction for a registration mark to count as present
	RotationMargin      float64 // how much darker the bottom-left mark must be to rotate

	// Bubble reading, on the normalized 0 (black) .. 1 (white) scale
	FillThreshold     float64
	AmbiguityGap      float64
	FullConfidenceGap float64

	// Classification
	BlankInkCoverage float64 // below this the page counts as blank
	MinFilledBubbles int     // fills needed to call a page without marks or code a scantron

	// Feature toggles
	SkipQualityCheck  bool
	SkipCodeDetection bool
}

// DefaultOptions returns the thresholds tuned for the standard answer sheet
func DefaultOptions() Options {
	return Options{
		DarkPixelThreshold:  128,
		MarkPresentFraction: 0.35,
		RotationMargin:      0.15,
		FillThreshold:       0.55,
		AmbiguityGap:        0.15,
		FullConfidenceGap:   0.45,
		BlankInkCoverage:    0.005,
		MinFilledBubbles:    3,
	}
}

// FastOptions skips the checks that only feed review flags and classification
func FastOptions() Options {
	opts := DefaultOptions()
	opts.SkipQualityCheck = true
	opts.SkipCodeDetection = true
	return opts
}

// WithFillThreshold returns options using a different fill threshold
func (opts Options) WithFillThreshold(threshold float64) Options {
	opts.FillThreshold = threshold
	return opts
}

// WithBubbleThresholds overrides the bubble reader thresholds
func (opts Options) WithBubbleThresholds(fill, ambiguityGap, fullConfidenceGap float64) Options {
	opts.FillThreshold = fill
	opts.AmbiguityGap = ambiguityGap
	opts.FullConfidenceGap = fullConfidenceGap
	return opts
}

// Validate checks that every threshold is usable
func (opts Options) Validate() error {
	if opts.DarkPixelThreshold == 0 {
		return fmt.Errorf("dark pixel threshold must be positive")
	}
	for name, v := range map[string]float64{
		"mark present fraction": opts.MarkPresentFraction,
		"rotation margin":       opts.RotationMargin,
		"fill threshold":        opts.FillThreshold,
		"ambiguity gap":         opts.AmbiguityGap,
		"blank ink coverage":    opts.BlankInkCoverage,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %f", name, v)
		}
	}
	if opts.FullConfidenceGap <= 0 || opts.FullConfidenceGap > 1 {
		return fmt.Errorf("full confidence gap must be within (0, 1], got %f", opts.FullConfidenceGap)
	}
	if opts.MinFilledBubbles < 0 {
		return fmt.Errorf("min filled bubbles must not be negative")
	}
	return nil
}
