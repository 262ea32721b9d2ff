package analyzer

import (
	"image"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// metricsCalculator implements MetricsCalculator with gonum statistics and
// strip-parallel pixel passes
type metricsCalculator struct {
	slicePool sync.Pool
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() MetricsCalculator {
	return &metricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// CalculatePageMetrics measures the whole page
func (mc *metricsCalculator) CalculatePageMetrics(gray *image.Gray, darkThreshold uint8) PageMetrics {
	b := gray.Bounds()
	basic := mc.calculateBasicMetrics(gray, darkThreshold)
	return PageMetrics{
		Width:        b.Dx(),
		Height:       b.Dy(),
		Brightness:   basic.brightness,
		InkCoverage:  basic.inkCoverage,
		LaplacianVar: mc.CalculateLaplacianVariance(gray),
	}
}

// calculateBasicMetrics computes brightness and ink coverage in one parallel pass
func (mc *metricsCalculator) calculateBasicMetrics(gray *image.Gray, darkThreshold uint8) basicMetrics {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return basicMetrics{}
	}

	numWorkers := runtime.NumCPU()
	if width*height < 100000 {
		numWorkers = 1
	}
	if height < numWorkers {
		numWorkers = height
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers // ceil division

	type stripResult struct {
		sum  float64
		dark int
	}

	results := make(chan stripResult, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		startY := bounds.Min.Y + i*rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 || endY > bounds.Max.Y {
			endY = bounds.Max.Y
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()

			var res stripResult
			for y := startY; y < endY; y++ {
				row := gray.Pix[gray.PixOffset(bounds.Min.X, y):gray.PixOffset(bounds.Max.X, y)]
				for _, v := range row {
					res.sum += float64(v)
					if v < darkThreshold {
						res.dark++
					}
				}
			}
			results <- res
		}(startY, endY)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var total float64
	var dark int
	for res := range results {
		total += res.sum
		dark += res.dark
	}

	pixels := float64(width * height)
	return basicMetrics{
		brightness:  total / pixels,
		inkCoverage: float64(dark) / pixels,
	}
}

// CalculateLaplacianVariance computes Laplacian variance using Gonum operations
func (mc *metricsCalculator) CalculateLaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := mc.slicePool.Get().([]float64)
	if cap(data) < (width-2)*(height-2) {
		data = make([]float64, 0, (width-2)*(height-2))
	}
	defer func() { mc.slicePool.Put(data[:0]) }()

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)

			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	if len(data) < 2 {
		return 0
	}

	return stat.Variance(data, nil)
}

// DarkFraction is the share of pixels in r below the threshold. Pixels of r
// outside the image count as light.
func (mc *metricsCalculator) DarkFraction(gray *image.Gray, r image.Rectangle, threshold uint8) float64 {
	area := r.Dx() * r.Dy()
	if area <= 0 {
		return 0
	}
	in := r.Intersect(gray.Bounds())
	dark := 0
	for y := in.Min.Y; y < in.Max.Y; y++ {
		for x := in.Min.X; x < in.Max.X; x++ {
			if gray.GrayAt(x, y).Y < threshold {
				dark++
			}
		}
	}
	return float64(dark) / float64(area)
}

// MeanIntensity is the mean of r normalized to 0 (black) .. 1 (white).
// Pixels of r outside the image count as 1.
func (mc *metricsCalculator) MeanIntensity(gray *image.Gray, r image.Rectangle) float64 {
	area := r.Dx() * r.Dy()
	if area <= 0 {
		return 1
	}
	in := r.Intersect(gray.Bounds())
	sum := float64(area - in.Dx()*in.Dy())
	for y := in.Min.Y; y < in.Max.Y; y++ {
		for x := in.Min.X; x < in.Max.X; x++ {
			sum += float64(gray.GrayAt(x, y).Y) / 255.0
		}
	}
	return sum / float64(area)
}
