// Package ocr recognizes the handwritten name on an answer sheet.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gonum.org/v1/gonum/stat"
)

// Result is recognized text with a 0-100 confidence
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine runs text recognition over an already enhanced image
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (Result, error)
}

// Config holds Tesseract settings
type Config struct {
	Language  string
	Whitelist string
}

// DefaultConfig reads a single line of English letters
func DefaultConfig() Config {
	return Config{
		Language:  "eng",
		Whitelist: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz .'-",
	}
}

// TesseractEngine runs Tesseract through gosseract
type TesseractEngine struct {
	cfg Config
}

// NewTesseractEngine creates an engine. Clients are created per call since a
// gosseract client is not safe for concurrent use.
func NewTesseractEngine(cfg Config) *TesseractEngine {
	if cfg.Language == "" {
		cfg.Language = DefaultConfig().Language
	}
	return &TesseractEngine{cfg: cfg}
}

// Recognize returns the text of img and the mean word confidence
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("failed to encode image for OCR: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.cfg.Language); err != nil {
		return Result{}, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return Result{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if e.cfg.Whitelist != "" {
		if err := client.SetWhitelist(e.cfg.Whitelist); err != nil {
			return Result{}, fmt.Errorf("failed to set OCR whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("failed to load image into OCR: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Result{}, fmt.Errorf("OCR failed: %w", err)
	}

	words := make([]string, 0, len(boxes))
	confidences := make([]float64, 0, len(boxes))
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		words = append(words, word)
		confidences = append(confidences, box.Confidence)
	}
	if len(words) == 0 {
		return Result{}, nil
	}

	return Result{
		Text:       strings.Join(words, " "),
		Confidence: stat.Mean(confidences, nil),
	}, nil
}
