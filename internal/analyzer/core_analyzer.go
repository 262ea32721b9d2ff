package analyzer

import (
	"fmt"
	"image"
	"sync"

	"go-scantron-grader/internal/layout"
	"go-scantron-grader/pkg/models"
	"go-scantron-grader/pkg/validation"
)

// pageAnalyzer implements PageAnalyzer and orchestrates all components
type pageAnalyzer struct {
	template          layout.Template
	opts              Options
	metricsCalculator MetricsCalculator
	qualityValidator  *validation.QualityValidator
	codeDetector      CodePatternDetector
	orientation       *OrientationDetector
	reader            *BubbleReader

	mu         sync.Mutex
	geometries map[image.Point]*layout.Geometry
}

// NewPageAnalyzer validates the template and thresholds and wires the components
func NewPageAnalyzer(template layout.Template, opts Options) (PageAnalyzer, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer options: %w", err)
	}

	metrics := NewMetricsCalculator()
	return &pageAnalyzer{
		template:          template,
		opts:              opts,
		metricsCalculator: metrics,
		qualityValidator:  validation.NewQualityValidator(),
		codeDetector:      NewQRDetector(opts.DarkPixelThreshold),
		orientation:       NewOrientationDetector(metrics, opts),
		reader:            NewBubbleReader(metrics, opts),
		geometries:        make(map[image.Point]*layout.Geometry),
	}, nil
}

// Geometry returns the cached projection of the template for a page size
func (pa *pageAnalyzer) Geometry(width, height int) (*layout.Geometry, error) {
	key := image.Pt(width, height)

	pa.mu.Lock()
	defer pa.mu.Unlock()
	if g, ok := pa.geometries[key]; ok {
		return g, nil
	}
	g, err := layout.NewGeometry(pa.template, width, height)
	if err != nil {
		return nil, err
	}
	pa.geometries[key] = g
	return g, nil
}

// Prepare corrects orientation, measures the page and runs the scan quality checks
func (pa *pageAnalyzer) Prepare(page PageImage) (*PreparedPage, error) {
	if page.Gray == nil {
		return nil, fmt.Errorf("page %d: %w", page.Number, layout.ErrEmptyImage)
	}
	b := page.Gray.Bounds()
	g, err := pa.Geometry(b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page.Number, err)
	}

	upright, orientation := pa.orientation.Correct(page, g)
	prepared := &PreparedPage{
		PageImage:   upright,
		Geometry:    g,
		Orientation: orientation,
		Metrics:     pa.metricsCalculator.CalculatePageMetrics(upright.Gray, pa.opts.DarkPixelThreshold),
	}

	if !pa.opts.SkipCodeDetection {
		prepared.CodePattern = pa.codeDetector.DetectCodePattern(upright.Gray, g.CodeRegion())
	}
	if !pa.opts.SkipQualityCheck {
		prepared.QualityIssues = pa.qualityValidator.ValidateScan(validation.ScanQualityMetrics{
			Width:        prepared.Metrics.Width,
			Height:       prepared.Metrics.Height,
			LaplacianVar: prepared.Metrics.LaplacianVar,
			Brightness:   prepared.Metrics.Brightness,
			InkCoverage:  prepared.Metrics.InkCoverage,
			Blank:        pa.isBlank(prepared),
		})
	}
	return prepared, nil
}

// ReadBubbles reads questions 1..count of an upright page
func (pa *pageAnalyzer) ReadBubbles(page *PreparedPage, count int) []models.BubbleReading {
	return pa.reader.Read(page.Gray, page.Geometry, count)
}

// Classify guesses what an unidentified page is
func (pa *pageAnalyzer) Classify(page *PreparedPage, readings []models.BubbleReading) models.PageClassification {
	if pa.isBlank(page) {
		return models.PageBlank
	}
	if page.Orientation.MarksDetected > 0 || page.CodePattern {
		return models.PageScantron
	}

	filled := 0
	for _, r := range readings {
		if len(r.MarkedChoices) > 0 {
			filled++
		}
	}
	if pa.opts.MinFilledBubbles > 0 && filled >= pa.opts.MinFilledBubbles {
		return models.PageScantron
	}
	return models.PageUnrelated
}

func (pa *pageAnalyzer) isBlank(page *PreparedPage) bool {
	return page.Metrics.InkCoverage < pa.opts.BlankInkCoverage
}

// Close releases the geometry cache
func (pa *pageAnalyzer) Close() error {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	pa.geometries = make(map[image.Point]*layout.Geometry)
	return nil
}
