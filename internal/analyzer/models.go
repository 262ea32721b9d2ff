package analyzer

import (
	"image"

	"go-scantron-grader/internal/layout"
	"go-scantron-grader/pkg/models"
	"go-scantron-grader/pkg/validation"
)

// PageImage is one rasterized page of a batch. The gray buffer is never
// mutated after construction; orientation correction yields a new buffer.
type PageImage struct {
	Number int
	Gray   *image.Gray
}

// Orientation is the outcome of the registration mark check
type Orientation struct {
	Rotated        bool    `json:"rotated"`
	MarksDetected  int     `json:"marksDetected"`
	TopRightDark   float64 `json:"topRightDark"`
	BottomLeftDark float64 `json:"bottomLeftDark"`
}

// PageMetrics are whole-page measurements used for quality checks and classification
type PageMetrics struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Brightness   float64 `json:"brightness"`
	LaplacianVar float64 `json:"laplacianVar"`
	InkCoverage  float64 `json:"inkCoverage"`
}

// PreparedPage is an upright page ready for identification and bubble reading
type PreparedPage struct {
	PageImage
	Geometry      *layout.Geometry
	Orientation   Orientation
	Metrics       PageMetrics
	QualityIssues []validation.QualityIssue
	CodePattern   bool
}

// Flags returns the review flags that come from the page itself
func (p *PreparedPage) Flags() []models.GradeFlag {
	var flags []models.GradeFlag
	if p.Orientation.Rotated {
		flags = append(flags, models.FlagOrientationCorrected)
	}
	if p.Orientation.MarksDetected < 2 {
		flags = append(flags, models.FlagOrientationUnverified)
	}
	for _, issue := range p.QualityIssues {
		if issue.Severity == "error" {
			flags = append(flags, models.FlagLowScanQuality)
			break
		}
	}
	return flags
}

// basicMetrics holds the single-pass brightness and ink totals
type basicMetrics struct {
	brightness  float64
	inkCoverage float64
}
