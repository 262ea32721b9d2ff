package identify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"go-scantron-grader/pkg/models"
)

// SupportedSchemaVersion is the only payload version this grader understands
const SupportedSchemaVersion = 1

// ErrInvalidPayload marks decoded text that is not a usable identity
var ErrInvalidPayload = errors.New("invalid identity payload")

// PayloadParser strictly decodes identity payloads
type PayloadParser struct {
	validate     *validator.Validate
	maxQuestions int
}

// NewPayloadParser creates a parser accepting question counts up to maxQuestions
func NewPayloadParser(maxQuestions int) *PayloadParser {
	return &PayloadParser{
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		maxQuestions: maxQuestions,
	}
}

// Parse decodes text into an Identity. Unknown fields, wrong types, missing
// required fields, an unsupported schema version or an out of range question
// count are all errors.
func (p *PayloadParser) Parse(text string) (*models.Identity, error) {
	text = strings.TrimSpace(text)
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}
	version := gjson.Get(text, "schemaVersion")
	if !version.Exists() {
		return nil, fmt.Errorf("%w: missing schemaVersion", ErrInvalidPayload)
	}
	if version.Type != gjson.Number || version.Int() != SupportedSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schemaVersion %s", ErrInvalidPayload, version.Raw)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var id models.Identity
	if err := dec.Decode(&id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}

	if err := p.validate.Struct(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if id.QuestionCount > p.maxQuestions {
		return nil, fmt.Errorf("%w: questionCount %d exceeds the sheet's %d rows", ErrInvalidPayload, id.QuestionCount, p.maxQuestions)
	}
	return &id, nil
}
