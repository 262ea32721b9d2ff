package analyzer

import (
	"fmt"
	"image"
	"image/draw"

	"go-scantron-grader/internal/layout"
)

// NewPageImage converts a decoded page to an origin-anchored gray buffer
func NewPageImage(number int, img image.Image) (PageImage, error) {
	if img == nil {
		return PageImage{}, fmt.Errorf("page %d: %w", number, layout.ErrEmptyImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return PageImage{}, fmt.Errorf("page %d: %w", number, layout.ErrEmptyImage)
	}
	return PageImage{Number: number, Gray: ToGray(img)}, nil
}

// ToGray returns img as an *image.Gray whose bounds start at (0, 0).
// A gray input already anchored at the origin is returned as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Rotate180 returns a rotated copy of an origin-anchored page
func Rotate180(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w]
		dstRow := dst.Pix[(h-1-y)*dst.Stride : (h-1-y)*dst.Stride+w]
		for x := 0; x < w; x++ {
			dstRow[w-1-x] = srcRow[x]
		}
	}
	return dst
}

// Crop copies a window of the page, clipped to the image bounds
func Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() {
		return dst
	}
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}
