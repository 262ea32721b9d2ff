package models

import (
	"slices"
	"time"
)

// Identity is the structured payload printed on a scantron as a QR code.
// A nil *Identity means the page could not be attributed to a student.
type Identity struct {
	AssignmentID  string `json:"assignmentId" validate:"required"`
	SectionID     string `json:"sectionId,omitempty"`
	UnitID        string `json:"unitId,omitempty"`
	StudentID     string `json:"studentId" validate:"required"`
	VersionID     string `json:"versionId" validate:"required"`
	VariantID     string `json:"variantId,omitempty"`
	SchemaVersion int    `json:"schemaVersion" validate:"required,eq=1"`
	QuestionCount int    `json:"questionCount" validate:"required,min=1"`
}

// IdentificationSource records how a page was attributed to a student
type IdentificationSource string

const (
	SourceCode   IdentificationSource = "code"
	SourceOCR    IdentificationSource = "ocr"
	SourceManual IdentificationSource = "manual"
)

// BubbleReading is the bubble reader's verdict for one question
type BubbleReading struct {
	QuestionNumber int     `json:"questionNumber"`
	Selected       string  `json:"selected,omitempty"`
	Confidence     float64 `json:"confidence"`
	MultipleMarks  bool    `json:"multipleMarks"`

	// MarkedChoices lists every label that read as filled; used for manual review.
	MarkedChoices []string `json:"markedChoices,omitempty"`
	// Intensities holds the mean normalized intensity per choice (0 black, 1 white).
	Intensities []float64 `json:"intensities,omitempty"`
}

// AnswerKeyEntry is the correct answer for one question of one assessment version
type AnswerKeyEntry struct {
	QuestionNumber int     `json:"questionNumber" yaml:"question"`
	QuestionID     string  `json:"questionId" yaml:"questionId"`
	CorrectAnswer  string  `json:"correctAnswer" yaml:"answer"`
	Points         float64 `json:"points" yaml:"points"`
}

// AnswerKeys maps an assessment version id to its ordered answer key
type AnswerKeys map[string][]AnswerKeyEntry

// AnswerResult is the scored outcome of a single question
type AnswerResult struct {
	QuestionNumber int     `json:"questionNumber"`
	QuestionID     string  `json:"questionId"`
	Selected       string  `json:"selected,omitempty"`
	CorrectAnswer  string  `json:"correctAnswer"`
	Correct        bool    `json:"correct"`
	Skipped        bool    `json:"skipped"`
	MultipleMarks  bool    `json:"multipleMarks,omitempty"`
	Confidence     float64 `json:"confidence"`
	PointsEarned   float64 `json:"pointsEarned"`
	PointsPossible float64 `json:"pointsPossible"`
}

// GradeFlag marks a condition a reviewer may want to look at
type GradeFlag string

const (
	FlagMultipleMarks         GradeFlag = "multiple_marks"
	FlagLowConfidence         GradeFlag = "low_confidence"
	FlagOCRIdentified         GradeFlag = "ocr_identified"
	FlagUnmatchedQuestions    GradeFlag = "unmatched_questions"
	FlagUnanswered            GradeFlag = "unanswered"
	FlagOrientationCorrected  GradeFlag = "orientation_corrected"
	FlagOrientationUnverified GradeFlag = "orientation_unverified"
	FlagLowScanQuality        GradeFlag = "low_scan_quality"
	FlagManuallyResolved      GradeFlag = "manually_resolved"
)

// GradeRecord is the scored result for one identified student page
type GradeRecord struct {
	StudentID          string               `json:"studentId"`
	AssignmentID       string               `json:"assignmentId"`
	VersionID          string               `json:"versionId"`
	Identity           Identity             `json:"identity"`
	Source             IdentificationSource `json:"source"`
	RawScore           int                  `json:"rawScore"`
	TotalQuestions     int                  `json:"totalQuestions"`
	Percentage         float64              `json:"percentage"`
	EarnedPoints       float64              `json:"earnedPoints"`
	PossiblePoints     float64              `json:"possiblePoints"`
	Answers            []AnswerResult       `json:"answers"`
	Flags              []GradeFlag          `json:"flags,omitempty"`
	NeedsReview        bool                 `json:"needsReview"`
	ReviewNotes        string               `json:"reviewNotes,omitempty"`
	ScantronPageNumber int                  `json:"scantronPageNumber"`
	BatchID            string               `json:"batchId,omitempty"`
	GradedAt           time.Time            `json:"gradedAt"`
}

// HasFlag reports whether the record carries the given flag
func (r GradeRecord) HasFlag(flag GradeFlag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// PageClassification is a best-effort guess at what an unidentified page is
type PageClassification string

const (
	PageScantron  PageClassification = "scantron"
	PageBlank     PageClassification = "blank"
	PageUnrelated PageClassification = "unrelated"
)

// UnresolvedReason explains why a page landed in the ledger
type UnresolvedReason string

const (
	ReasonUnidentified       UnresolvedReason = "unidentified"
	ReasonAmbiguousName      UnresolvedReason = "ambiguous_name"
	ReasonAssignmentMismatch UnresolvedReason = "assignment_mismatch"
	ReasonMissingAnswerKey   UnresolvedReason = "missing_answer_key"
)

// StudentCandidate is a roster entry that may match an OCR name guess
type StudentCandidate struct {
	StudentID string  `json:"studentId"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

// UnidentifiedPage is a page waiting for manual attribution
type UnidentifiedPage struct {
	PageNumber      int                `json:"pageNumber"`
	Classification  PageClassification `json:"classification"`
	Reason          UnresolvedReason   `json:"reason"`
	Readings        []BubbleReading    `json:"readings"`
	OCRStudentName  *string            `json:"ocrStudentName,omitempty"`
	OCRConfidence   float64            `json:"ocrConfidence,omitempty"`
	Candidates      []StudentCandidate `json:"candidates,omitempty"`
	VersionID       string             `json:"versionId,omitempty"`
	DecodedIdentity *Identity          `json:"decodedIdentity,omitempty"`
	Flags           []GradeFlag        `json:"flags,omitempty"`
	BatchID         string             `json:"batchId,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// RosterEntry is a student the OCR fallback can match a name against
type RosterEntry struct {
	StudentID string `json:"studentId" yaml:"studentId" binding:"required"`
	Name      string `json:"name" yaml:"name" binding:"required"`
}

// QuestionStats holds per-question correctness counts across a record set
type QuestionStats struct {
	QuestionNumber int     `json:"questionNumber"`
	QuestionID     string  `json:"questionId,omitempty"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	Skipped        int     `json:"skipped"`
	CorrectRate    float64 `json:"correctRate"`
	IncorrectRate  float64 `json:"incorrectRate"`
	SkippedRate    float64 `json:"skippedRate"`
}

// GradeStats are the aggregate numbers for an assignment
type GradeStats struct {
	Count             int             `json:"count"`
	AverageScore      float64         `json:"averageScore"`
	MedianScore       float64         `json:"medianScore"`
	HighScore         float64         `json:"highScore"`
	LowScore          float64         `json:"lowScore"`
	StandardDeviation float64         `json:"standardDeviation"`
	NeedsReview       int             `json:"needsReview"`
	Questions         []QuestionStats `json:"questionStats"`
}

// GradeBook is the persisted state of one assignment
type GradeBook struct {
	AssignmentID string             `json:"assignmentId"`
	Records      []GradeRecord      `json:"records"`
	Unidentified []UnidentifiedPage `json:"unidentified"`
	Stats        GradeStats         `json:"stats"`
	Revision     int64              `json:"revision"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// NewGradeBook returns an empty grade book for an assignment
func NewGradeBook(assignmentID string) *GradeBook {
	return &GradeBook{
		AssignmentID: assignmentID,
		Records:      []GradeRecord{},
		Unidentified: []UnidentifiedPage{},
	}
}

// Record returns the record for a student, if any
func (g *GradeBook) Record(studentID string) (GradeRecord, bool) {
	for _, r := range g.Records {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return GradeRecord{}, false
}

// Clone returns a deep copy so callers can mutate it without touching shared state
func (g *GradeBook) Clone() *GradeBook {
	if g == nil {
		return nil
	}
	out := *g
	out.Records = slices.Clone(g.Records)
	for i := range out.Records {
		out.Records[i] = out.Records[i].Clone()
	}
	out.Unidentified = slices.Clone(g.Unidentified)
	for i := range out.Unidentified {
		out.Unidentified[i] = out.Unidentified[i].Clone()
	}
	out.Stats.Questions = slices.Clone(g.Stats.Questions)
	return &out
}

// Clone returns a deep copy of the record
func (r GradeRecord) Clone() GradeRecord {
	r.Answers = slices.Clone(r.Answers)
	r.Flags = slices.Clone(r.Flags)
	return r
}

// Clone returns a deep copy of the page
func (p UnidentifiedPage) Clone() UnidentifiedPage {
	p.Readings = CloneReadings(p.Readings)
	p.Candidates = slices.Clone(p.Candidates)
	p.Flags = slices.Clone(p.Flags)
	if p.OCRStudentName != nil {
		name := *p.OCRStudentName
		p.OCRStudentName = &name
	}
	if p.DecodedIdentity != nil {
		id := *p.DecodedIdentity
		p.DecodedIdentity = &id
	}
	return p
}

// CloneReadings deep-copies a slice of bubble readings
func CloneReadings(readings []BubbleReading) []BubbleReading {
	if readings == nil {
		return nil
	}
	out := make([]BubbleReading, len(readings))
	for i, r := range readings {
		r.MarkedChoices = slices.Clone(r.MarkedChoices)
		r.Intensities = slices.Clone(r.Intensities)
		out[i] = r
	}
	return out
}
