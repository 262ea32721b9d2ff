// Package identify attributes answer sheet pages to students.
package identify

import (
	"context"
	"image"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"go-scantron-grader/internal/analyzer"
	"go-scantron-grader/internal/decoder"
	"go-scantron-grader/internal/layout"
	"go-scantron-grader/internal/logger"
	"go-scantron-grader/internal/ocr"
	"go-scantron-grader/internal/strategy"
	"go-scantron-grader/pkg/models"
)

// Options holds the resolver thresholds
type Options struct {
	Timeout          time.Duration // budget for each decode or OCR call
	MinOCRConfidence float64       // 0-100
	MinNameLength    int
	Match            MatchOptions
}

// DefaultOptions returns the standard resolver settings
func DefaultOptions() Options {
	return Options{
		Timeout:          10 * time.Second,
		MinOCRConfidence: 50,
		MinNameLength:    3,
		Match:            DefaultMatchOptions(),
	}
}

// Resolution is the outcome of identifying one page
type Resolution struct {
	// Identity is set only when a code was decoded
	Identity *models.Identity
	// StudentID is set for every identified page, by code or by roster match
	StudentID string
	// Source is empty when the page could not be identified
	Source models.IdentificationSource

	OCRName       *string
	OCRConfidence float64
	Candidates    []models.StudentCandidate

	// Variant names the image variant that produced the decoded code
	Variant string
}

// Identified reports whether the page was attributed to a student
func (r Resolution) Identified() bool {
	return r.Source != ""
}

// Resolver runs code decode first and falls back to OCR name matching.
// A successful decode is never overridden by OCR.
type Resolver struct {
	decoder  decoder.Decoder
	engine   ocr.Engine
	parser   *PayloadParser
	variants *strategy.Pipeline
	enhance  strategy.VariantStrategy
	matcher  *RosterMatcher
	opts     Options
}

// NewResolver wires the collaborators for one batch. engine may be nil to
// disable the OCR fallback; an empty roster disables name matching.
func NewResolver(dec decoder.Decoder, engine ocr.Engine, roster []models.RosterEntry, template layout.Template, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Resolver{
		decoder:  dec,
		engine:   engine,
		parser:   NewPayloadParser(template.MaxQuestions),
		variants: strategy.DefaultDecodePipeline(),
		enhance:  strategy.NewOCREnhanceStrategy(),
		matcher:  NewRosterMatcher(roster, opts.Match),
		opts:     opts,
	}
}

// Resolve identifies an upright page. It never fails: every failure mode
// ends in an unidentified resolution.
func (r *Resolver) Resolve(ctx context.Context, pageNumber int, gray *image.Gray, g *layout.Geometry) Resolution {
	log := logger.WithFields(logrus.Fields{"page": pageNumber})

	if id, variant, ok := r.decodeIdentity(ctx, gray, g, log); ok {
		return Resolution{
			Identity:  id,
			StudentID: id.StudentID,
			Source:    models.SourceCode,
			Variant:   variant,
		}
	}
	if ctx.Err() != nil {
		return Resolution{}
	}

	var res Resolution
	name, confidence, ok := r.readName(ctx, gray, g, log)
	res.OCRConfidence = confidence
	if !ok {
		return res
	}
	res.OCRName = &name

	match := r.matcher.Match(name)
	res.Candidates = match.Candidates
	if match.Match != nil {
		res.StudentID = match.Match.StudentID
		res.Source = models.SourceOCR
		log.WithFields(logrus.Fields{
			"student_id": res.StudentID,
			"score":      match.Match.Score,
		}).Debug("Page identified by OCR name match")
	}
	return res
}

func (r *Resolver) decodeIdentity(ctx context.Context, gray *image.Gray, g *layout.Geometry, log *logrus.Entry) (*models.Identity, string, bool) {
	targets := []image.Image{analyzer.Crop(gray, g.CodeRegion()), gray}

	var id *models.Identity
	variant, ok := r.variants.FirstMatch(targets, func(img image.Image) bool {
		if ctx.Err() != nil {
			return false
		}
		text, err := callWithTimeout(ctx, r.opts.Timeout, func(ctx context.Context) (string, error) {
			return r.decoder.Decode(ctx, img)
		})
		if err != nil {
			return false
		}
		parsed, err := r.parser.Parse(text)
		if err != nil {
			log.WithError(err).Debug("Decoded code rejected")
			return false
		}
		id = parsed
		return true
	})
	if !ok {
		log.WithField("variants", r.variants.Names()).Debug("No code decoded, falling back to OCR")
	}
	return id, variant, ok
}

func (r *Resolver) readName(ctx context.Context, gray *image.Gray, g *layout.Geometry, log *logrus.Entry) (string, float64, bool) {
	if r.engine == nil {
		return "", 0, false
	}

	enhanced := r.enhance.Apply(analyzer.Crop(gray, g.NameField()))
	result, err := callWithTimeout(ctx, r.opts.Timeout, func(ctx context.Context) (ocr.Result, error) {
		return r.engine.Recognize(ctx, enhanced)
	})
	if err != nil {
		log.WithError(err).Warn("OCR failed")
		return "", 0, false
	}

	name := strings.TrimSpace(result.Text)
	if result.Confidence < r.opts.MinOCRConfidence || utf8.RuneCountInString(name) < r.opts.MinNameLength {
		log.WithFields(logrus.Fields{
			"confidence": result.Confidence,
			"length":     utf8.RuneCountInString(name),
		}).Debug("OCR name rejected")
		return "", result.Confidence, false
	}
	return name, result.Confidence, true
}
