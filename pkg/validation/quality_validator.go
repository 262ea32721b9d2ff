package validation

// QualityThresholds defines configurable thresholds for scan quality validation
type QualityThresholds struct {
	// Sharpness: Laplacian variance of the grayscale page
	MinLaplacianVariance float64

	// Brightness on the 0-255 scale
	MinBrightness float64
	MaxBrightness float64

	// Resolution
	MinWidth  int
	MinHeight int

	// Fraction of dark pixels over the whole page
	MaxInkCoverage float64
}

// DefaultQualityThresholds returns thresholds tuned for 100-300 DPI office scans
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLaplacianVariance: 20.0,
		MinBrightness:        120.0,
		MaxBrightness:        254.0,
		MinWidth:             600,
		MinHeight:            780,
		MaxInkCoverage:       0.45,
	}
}

// QualityValidator handles scan quality validation logic
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "error", "warning"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// ScanQualityMetrics represents the metrics needed for scan validation
type ScanQualityMetrics struct {
	Width        int
	Height       int
	LaplacianVar float64
	Brightness   float64
	InkCoverage  float64

	// Blank pages are expected to be flat; blur checks are skipped for them
	Blank bool
}

// ValidateScan reports issues that can make bubble or identity reading unreliable
func (qv *QualityValidator) ValidateScan(metrics ScanQualityMetrics) []QualityIssue {
	var issues []QualityIssue

	if metrics.Width < qv.thresholds.MinWidth || metrics.Height < qv.thresholds.MinHeight {
		issues = append(issues, QualityIssue{
			Type:        "low_resolution",
			Message:     "Scan resolution is too low. Rescan at 100 DPI or higher.",
			Severity:    "error",
			ActualValue: float64(metrics.Width * metrics.Height),
			Threshold:   float64(qv.thresholds.MinWidth * qv.thresholds.MinHeight),
		})
	}

	if !metrics.Blank && metrics.LaplacianVar < qv.thresholds.MinLaplacianVariance {
		issues = append(issues, QualityIssue{
			Type:        "blurriness",
			Message:     "Scan is blurry. Check the scanner glass and resolution settings.",
			Severity:    "error",
			ActualValue: metrics.LaplacianVar,
			Threshold:   qv.thresholds.MinLaplacianVariance,
		})
	}

	if metrics.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_dark",
			Message:     "Scan is too dark. Lower the scanner darkness setting.",
			Severity:    "error",
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	} else if metrics.Brightness > qv.thresholds.MaxBrightness && !metrics.Blank {
		issues = append(issues, QualityIssue{
			Type:        "too_bright",
			Message:     "Scan is washed out. Pencil marks may not register.",
			Severity:    "warning",
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	if metrics.InkCoverage > qv.thresholds.MaxInkCoverage {
		issues = append(issues, QualityIssue{
			Type:        "heavy_ink",
			Message:     "Too much of the page is dark. The page may be a photo or a bad scan.",
			Severity:    "warning",
			ActualValue: metrics.InkCoverage,
			Threshold:   qv.thresholds.MaxInkCoverage,
		})
	}

	return issues
}

// ConvertIssuesToMessages flattens issues to their messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HasCriticalIssues checks if there are any critical (error severity) issues
func (qv *QualityValidator) HasCriticalIssues(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}
