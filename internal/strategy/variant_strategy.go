package strategy

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// VariantStrategy produces one image variant for a decode or OCR attempt
type VariantStrategy interface {
	Apply(img image.Image) image.Image
	GetStrategyName() string
}

// OriginalStrategy passes the image through unchanged
type OriginalStrategy struct{}

// NewOriginalStrategy creates a pass-through strategy
func NewOriginalStrategy() VariantStrategy {
	return &OriginalStrategy{}
}

// Apply returns img as is
func (s *OriginalStrategy) Apply(img image.Image) image.Image {
	return img
}

// GetStrategyName returns the strategy name
func (s *OriginalStrategy) GetStrategyName() string {
	return "original"
}

// UpscaleStrategy enlarges the image so small modules and strokes survive binarization
type UpscaleStrategy struct {
	factor int
}

// NewUpscaleStrategy creates an upscaling strategy; factors below 2 become 2
func NewUpscaleStrategy(factor int) VariantStrategy {
	if factor < 2 {
		factor = 2
	}
	return &UpscaleStrategy{factor: factor}
}

// Apply resizes with a Lanczos filter
func (s *UpscaleStrategy) Apply(img image.Image) image.Image {
	b := img.Bounds()
	return imaging.Resize(img, b.Dx()*s.factor, b.Dy()*s.factor, imaging.Lanczos)
}

// GetStrategyName returns the strategy name
func (s *UpscaleStrategy) GetStrategyName() string {
	return "upscaled"
}

// ContrastStrategy stretches the gray levels between two percentiles to the full range
type ContrastStrategy struct {
	lowPercentile  float64
	highPercentile float64
}

// NewContrastStrategy creates a contrast normalization strategy clipping 1% at each end
func NewContrastStrategy() VariantStrategy {
	return &ContrastStrategy{lowPercentile: 0.01, highPercentile: 0.99}
}

// Apply converts to grayscale and stretches the histogram
func (s *ContrastStrategy) Apply(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	lo, hi := s.levels(gray)
	if hi <= lo {
		return gray
	}
	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := stretch(c.R, lo, scale)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

func (s *ContrastStrategy) levels(img *image.NRGBA) (uint8, uint8) {
	var hist [256]int
	total := 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		hist[img.Pix[i]]++
		total++
	}
	if total == 0 {
		return 0, 255
	}
	cumulative := make([]int, 256)
	running := 0
	for v, n := range hist {
		running += n
		cumulative[v] = running
	}
	find := func(p float64) uint8 {
		target := int(p * float64(total))
		return uint8(sort.SearchInts(cumulative, target+1))
	}
	return find(s.lowPercentile), find(s.highPercentile)
}

func stretch(v, lo uint8, scale float64) uint8 {
	if v <= lo {
		return 0
	}
	out := float64(v-lo) * scale
	if out > 255 {
		return 255
	}
	return uint8(out + 0.5)
}

// GetStrategyName returns the strategy name
func (s *ContrastStrategy) GetStrategyName() string {
	return "contrast_normalized"
}

// RotateStrategy turns the image by 180 degrees
type RotateStrategy struct{}

// NewRotateStrategy creates a 180 degree rotation strategy
func NewRotateStrategy() VariantStrategy {
	return &RotateStrategy{}
}

// Apply rotates the image
func (s *RotateStrategy) Apply(img image.Image) image.Image {
	return imaging.Rotate180(img)
}

// GetStrategyName returns the strategy name
func (s *RotateStrategy) GetStrategyName() string {
	return "rotated_180"
}

// OCREnhanceStrategy prepares a handwriting crop for OCR:
// upscale, grayscale, contrast normalization and sharpening
type OCREnhanceStrategy struct {
	upscale  VariantStrategy
	contrast VariantStrategy
	sigma    float64
}

// NewOCREnhanceStrategy creates the OCR enhancement chain
func NewOCREnhanceStrategy() VariantStrategy {
	return &OCREnhanceStrategy{
		upscale:  NewUpscaleStrategy(2),
		contrast: NewContrastStrategy(),
		sigma:    1.0,
	}
}

// Apply runs the chain
func (s *OCREnhanceStrategy) Apply(img image.Image) image.Image {
	out := s.upscale.Apply(img)
	out = s.contrast.Apply(out)
	return imaging.Sharpen(out, s.sigma)
}

// GetStrategyName returns the strategy name
func (s *OCREnhanceStrategy) GetStrategyName() string {
	return "ocr_enhanced"
}
