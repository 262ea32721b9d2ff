package analyzer

import (
	"image"
	"math"
)

// qrDetector implements CodePatternDetector by looking for QR finder patterns:
// dark-light-dark-light-dark runs in a 1:1:3:1:1 ratio
type qrDetector struct {
	darkThreshold uint8
}

// NewQRDetector creates a new QR finder pattern detector
func NewQRDetector(darkThreshold uint8) CodePatternDetector {
	return &qrDetector{darkThreshold: darkThreshold}
}

type finderHit struct {
	x, y   float64
	module float64
}

type finderCluster struct {
	x, lastY float64
	module   float64
	rows     int
}

// DetectCodePattern reports whether the window holds at least two finder patterns
func (qd *qrDetector) DetectCodePattern(gray *image.Gray, region image.Rectangle) bool {
	region = region.Intersect(gray.Bounds())
	if region.Dx() < 7 || region.Dy() < 7 {
		return false
	}

	var clusters []*finderCluster
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for _, hit := range qd.scanRow(gray, region, y) {
			clusters = qd.addHit(clusters, hit)
		}
	}

	patterns := 0
	for _, c := range clusters {
		// A real finder pattern's centre stone spans about three modules of rows
		if float64(c.rows) >= math.Max(2, c.module) {
			patterns++
		}
	}
	return patterns >= 2
}

// scanRow returns the centres of every 1:1:3:1:1 run sequence on row y
func (qd *qrDetector) scanRow(gray *image.Gray, region image.Rectangle, y int) []finderHit {
	var runs []int
	var starts []int
	dark := false
	for x := region.Min.X; x < region.Max.X; x++ {
		isDark := gray.GrayAt(x, y).Y < qd.darkThreshold
		if len(runs) == 0 {
			if !isDark {
				continue
			}
			runs, starts, dark = append(runs, 1), append(starts, x), true
			continue
		}
		if isDark == dark {
			runs[len(runs)-1]++
			continue
		}
		runs, starts, dark = append(runs, 1), append(starts, x), isDark
	}

	var hits []finderHit
	// Windows start on dark runs, which sit at even indexes
	for i := 0; i+4 < len(runs); i += 2 {
		if module, ok := qd.finderRatio(runs[i : i+5]); ok {
			center := float64(starts[i+2]) + float64(runs[i+2])/2
			hits = append(hits, finderHit{x: center, y: float64(y), module: module})
		}
	}
	return hits
}

// finderRatio checks five run lengths against 1:1:3:1:1
func (qd *qrDetector) finderRatio(runs []int) (float64, bool) {
	total := 0
	for _, r := range runs {
		if r == 0 {
			return 0, false
		}
		total += r
	}
	if total < 7 {
		return 0, false
	}
	module := float64(total) / 7
	maxVariance := module / 2
	ok := math.Abs(module-float64(runs[0])) < maxVariance &&
		math.Abs(module-float64(runs[1])) < maxVariance &&
		math.Abs(3*module-float64(runs[2])) < 3*maxVariance &&
		math.Abs(module-float64(runs[3])) < maxVariance &&
		math.Abs(module-float64(runs[4])) < maxVariance
	return module, ok
}

func (qd *qrDetector) addHit(clusters []*finderCluster, hit finderHit) []*finderCluster {
	for _, c := range clusters {
		tol := math.Max(2, c.module)
		if math.Abs(c.x-hit.x) <= tol && hit.y-c.lastY <= tol {
			c.rows++
			c.lastY = hit.y
			return clusters
		}
	}
	return append(clusters, &finderCluster{x: hit.x, lastY: hit.y, module: hit.module, rows: 1})
}
