package layout

import (
	"errors"
	"fmt"
)

// Rect is an axis-aligned window in reference units (points at 72 DPI)
type Rect struct {
	X, Y, Width, Height float64
}

// Template holds the fixed reference geometry of the answer sheet.
// All values are in points on a reference page; pixel positions are derived by
// scaling with imageWidth / PageWidth.
type Template struct {
	PageWidth  float64
	PageHeight float64

	// Grid
	FirstRowY     float64 // centre of question 1's row
	RowHeight     float64
	FirstChoiceX  float64 // centre of choice A
	ChoiceSpacing float64
	BubbleRadius  float64
	Choices       []string
	MaxQuestions  int
	BottomMargin  float64

	// Registration marks sit in the top-right and bottom-left corners
	CornerMarkSize  float64
	CornerMarkInset float64

	NameField  Rect
	CodeRegion Rect
}

// DefaultTemplate is the single-column US Letter sheet the printing side produces
func DefaultTemplate() Template {
	return Template{
		PageWidth:       612,
		PageHeight:      792,
		FirstRowY:       190,
		RowHeight:       19,
		FirstChoiceX:    120,
		ChoiceSpacing:   32,
		BubbleRadius:    7,
		Choices:         []string{"A", "B", "C", "D"},
		MaxQuestions:    30,
		BottomMargin:    36,
		CornerMarkSize:  24,
		CornerMarkInset: 18,
		NameField:       Rect{X: 72, Y: 72, Width: 300, Height: 44},
		CodeRegion:      Rect{X: 456, Y: 60, Width: 108, Height: 108},
	}
}

var errInvalidTemplate = errors.New("invalid layout template")

// Validate rejects templates that cannot produce sane geometry.
func (t Template) Validate() error {
	switch {
	case t.PageWidth <= 0 || t.PageHeight <= 0:
		return fmt.Errorf("%w: page size must be positive (got %.1fx%.1f)", errInvalidTemplate, t.PageWidth, t.PageHeight)
	case t.RowHeight <= 0 || t.ChoiceSpacing <= 0 || t.BubbleRadius <= 0:
		return fmt.Errorf("%w: row height, choice spacing and bubble radius must be positive", errInvalidTemplate)
	case len(t.Choices) == 0:
		return fmt.Errorf("%w: no choices", errInvalidTemplate)
	case t.MaxQuestions <= 0:
		return fmt.Errorf("%w: max questions must be positive", errInvalidTemplate)
	case t.CornerMarkSize <= 0:
		return fmt.Errorf("%w: corner mark size must be positive", errInvalidTemplate)
	}

	seen := make(map[string]bool, len(t.Choices))
	for _, c := range t.Choices {
		if c == "" || seen[c] {
			return fmt.Errorf("%w: choice labels must be unique and non-empty", errInvalidTemplate)
		}
		seen[c] = true
	}

	lastRow := t.FirstRowY + float64(t.MaxQuestions-1)*t.RowHeight
	if t.FirstRowY-t.BubbleRadius < 0 || lastRow+t.BubbleRadius > t.PageHeight-t.BottomMargin {
		return fmt.Errorf("%w: %d rows do not fit between y=%.1f and the bottom margin", errInvalidTemplate, t.MaxQuestions, t.FirstRowY)
	}
	lastChoice := t.FirstChoiceX + float64(len(t.Choices)-1)*t.ChoiceSpacing
	if t.FirstChoiceX-t.BubbleRadius < 0 || lastChoice+t.BubbleRadius > t.PageWidth {
		return fmt.Errorf("%w: choice columns overflow the page width", errInvalidTemplate)
	}
	for name, r := range map[string]Rect{"name field": t.NameField, "code region": t.CodeRegion} {
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("%w: %s must have a positive size", errInvalidTemplate, name)
		}
	}
	return nil
}

// IsInvalidTemplate reports whether err came from Validate
func IsInvalidTemplate(err error) bool {
	return errors.Is(err, errInvalidTemplate)
}
