package layout

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrEmptyImage is returned for zero-sized page images
var ErrEmptyImage = errors.New("image has zero width or height")

// Bubble is a choice location in pixels
type Bubble struct {
	Label  string
	Center image.Point
	Radius int
}

// Question is one row of bubbles
type Question struct {
	Number  int
	Bubbles []Bubble
}

// Geometry is the template projected onto an image of a given size.
// It is computed once per image size and never mutated.
type Geometry struct {
	Width, Height int
	Scale         float64

	template Template
}

// NewGeometry scales the template to an image of width x height pixels
func NewGeometry(t Template, width, height int) (*Geometry, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Geometry{
		Width:    width,
		Height:   height,
		Scale:    float64(width) / t.PageWidth,
		template: t,
	}, nil
}

// Template returns the reference template the geometry was built from
func (g *Geometry) Template() Template {
	return g.template
}

// Px converts a reference value to pixels
func (g *Geometry) Px(ref float64) int {
	return int(math.Round(ref * g.Scale))
}

// RectPx converts a reference window to a pixel rectangle. The result may
// extend past the image bounds; samplers treat outside pixels as light.
func (g *Geometry) RectPx(r Rect) image.Rectangle {
	x0, y0 := g.Px(r.X), g.Px(r.Y)
	return image.Rect(x0, y0, x0+g.Px(r.Width), y0+g.Px(r.Height))
}

// Question returns the bubble row for a 1-based question number
func (g *Geometry) Question(number int) Question {
	t := g.template
	row := t.FirstRowY + float64(number-1)*t.RowHeight
	radius := g.Px(t.BubbleRadius)
	if radius < 1 {
		radius = 1
	}
	q := Question{Number: number, Bubbles: make([]Bubble, len(t.Choices))}
	for i, label := range t.Choices {
		q.Bubbles[i] = Bubble{
			Label:  label,
			Center: image.Pt(g.Px(t.FirstChoiceX+float64(i)*t.ChoiceSpacing), g.Px(row)),
			Radius: radius,
		}
	}
	return q
}

// Questions returns rows 1..count, clamped to the template maximum
func (g *Geometry) Questions(count int) []Question {
	if count > g.template.MaxQuestions {
		count = g.template.MaxQuestions
	}
	if count < 0 {
		count = 0
	}
	out := make([]Question, count)
	for i := range out {
		out[i] = g.Question(i + 1)
	}
	return out
}

// NameField is the pixel window holding the handwritten student name
func (g *Geometry) NameField() image.Rectangle {
	return g.RectPx(g.template.NameField)
}

// CodeRegion is the pixel window holding the QR code
func (g *Geometry) CodeRegion() image.Rectangle {
	return g.RectPx(g.template.CodeRegion)
}

// TopRightMark is the window of the solid registration mark on an upright page
func (g *Geometry) TopRightMark() image.Rectangle {
	t := g.template
	return g.RectPx(Rect{
		X:      t.PageWidth - t.CornerMarkInset - t.CornerMarkSize,
		Y:      t.CornerMarkInset,
		Width:  t.CornerMarkSize,
		Height: t.CornerMarkSize,
	})
}

// BottomLeftMark is the window of the lighter registration mark on an upright page
func (g *Geometry) BottomLeftMark() image.Rectangle {
	t := g.template
	return g.RectPx(Rect{
		X:      t.CornerMarkInset,
		Y:      t.PageHeight - t.CornerMarkInset - t.CornerMarkSize,
		Width:  t.CornerMarkSize,
		Height: t.CornerMarkSize,
	})
}

// SampleWindow returns the square sampling window for a bubble. The half
// side is 70% of the radius so the printed outline stays outside it.
func (g *Geometry) SampleWindow(b Bubble) image.Rectangle {
	half := int(math.Round(0.7 * float64(b.Radius)))
	if half < 1 {
		half = 1
	}
	return image.Rect(b.Center.X-half, b.Center.Y-half, b.Center.X+half+1, b.Center.Y+half+1)
}
