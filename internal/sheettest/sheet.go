// Package sheettest renders synthetic answer sheets for tests.
package sheettest

import (
	"encoding/json"
	"image"
	"image/color"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"go-scantron-grader/internal/layout"
	"go-scantron-grader/pkg/models"
)

// Default page size, US Letter at 150 DPI
const (
	Width  = 1275
	Height = 1650
)

// Pencil is the gray level of a firmly filled bubble
const Pencil uint8 = 40

// Sheet describes what to draw on a page
type Sheet struct {
	Width, Height int

	// Answers fills one bubble per question with Pencil
	Answers map[int]string
	// Shades sets arbitrary gray levels, question -> label -> level.
	// Applied after Answers.
	Shades map[int]map[string]uint8

	// NoMarks leaves out the registration marks
	NoMarks bool
	// Code is printed as a QR code in the code region when non-empty
	Code string
	// Scribble puts handwriting-like strokes in the name field
	Scribble bool
	// UpsideDown rotates the finished page by 180 degrees
	UpsideDown bool
}

// Render draws the sheet
func Render(s Sheet) *image.Gray {
	if s.Width == 0 {
		s.Width, s.Height = Width, Height
	}
	img := white(s.Width, s.Height)
	g, err := layout.NewGeometry(layout.DefaultTemplate(), s.Width, s.Height)
	if err != nil {
		panic(err)
	}

	if !s.NoMarks {
		fillRect(img, g.TopRightMark(), 0)
		hollowRect(img, g.BottomLeftMark(), 0)
	}

	for _, q := range g.Questions(g.Template().MaxQuestions) {
		for _, b := range q.Bubbles {
			ring(img, b.Center, float64(b.Radius), 90)
			shade, ok := shadeFor(s, q.Number, b.Label)
			if ok {
				disk(img, b.Center, float64(b.Radius), shade)
			}
		}
	}

	if s.Code != "" {
		if err := drawCode(img, g.CodeRegion(), s.Code); err != nil {
			panic(err)
		}
	}
	if s.Scribble {
		scribble(img, g.NameField())
	}
	if s.UpsideDown {
		img = rotate(img)
	}
	return img
}

// Blank is an empty white page
func Blank() *image.Gray {
	return white(Width, Height)
}

// Letter is a text-like page without any answer sheet features
func Letter() *image.Gray {
	img := white(Width, Height)
	for y := 150; y < Height-150; y += 30 {
		for x := 120; x < Width-120; x += 14 {
			if (x/14+y/30)%5 == 0 {
				continue
			}
			fillRect(img, image.Rect(x, y, x+10, y+8), 20)
		}
	}
	return img
}

// Payload encodes an identity the way the printing side does
func Payload(id models.Identity) string {
	data, err := json.Marshal(id)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Identity returns a valid identity for tests
func Identity(studentID string, questions int) models.Identity {
	return models.Identity{
		AssignmentID:  "A1",
		SectionID:     "SEC1",
		UnitID:        "U1",
		StudentID:     studentID,
		VersionID:     "V1",
		SchemaVersion: 1,
		QuestionCount: questions,
	}
}

func shadeFor(s Sheet, question int, label string) (uint8, bool) {
	if shades, ok := s.Shades[question]; ok {
		if v, ok := shades[label]; ok {
			return v, true
		}
	}
	if s.Answers[question] == label {
		return Pencil, true
	}
	return 0, false
}

func white(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fillRect(img *image.Gray, r image.Rectangle, v uint8) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func hollowRect(img *image.Gray, r image.Rectangle, v uint8) {
	t := r.Dx() / 6
	if t < 1 {
		t = 1
	}
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), v)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), v)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), v)
	fillRect(img, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), v)
}

func ring(img *image.Gray, c image.Point, radius float64, v uint8) {
	reach := int(radius) + 2
	for y := c.Y - reach; y <= c.Y+reach; y++ {
		for x := c.X - reach; x <= c.X+reach; x++ {
			d := math.Hypot(float64(x-c.X), float64(y-c.Y)) - radius
			if d >= 0 && d < 1.5 && image.Pt(x, y).In(img.Bounds()) {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
	}
}

func disk(img *image.Gray, c image.Point, radius float64, v uint8) {
	reach := int(radius) + 1
	for y := c.Y - reach; y <= c.Y+reach; y++ {
		for x := c.X - reach; x <= c.X+reach; x++ {
			if math.Hypot(float64(x-c.X), float64(y-c.Y)) <= radius && image.Pt(x, y).In(img.Bounds()) {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
	}
}

func scribble(img *image.Gray, r image.Rectangle) {
	for x := r.Min.X + 10; x < r.Max.X-10; x++ {
		y := r.Min.Y + r.Dy()/2 + int(float64(r.Dy())/4*math.Sin(float64(x)/6))
		fillRect(img, image.Rect(x, y, x+2, y+3), 30)
	}
}

func drawCode(img *image.Gray, region image.Rectangle, payload string) error {
	bm, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, region.Dx(), region.Dy(), nil)
	if err != nil {
		return err
	}
	for y := 0; y < bm.GetHeight() && y < region.Dy(); y++ {
		for x := 0; x < bm.GetWidth() && x < region.Dx(); x++ {
			v := uint8(255)
			if bm.Get(x, y) {
				v = 0
			}
			img.SetGray(region.Min.X+x, region.Min.Y+y, color.Gray{Y: v})
		}
	}
	return nil
}

func rotate(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(b.Dx()-1-x, b.Dy()-1-y, src.GrayAt(x, y))
		}
	}
	return dst
}
