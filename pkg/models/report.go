package models

import "time"

// AssignmentReport is the reviewer-facing summary of a grade book
type AssignmentReport struct {
	AssignmentID string    `json:"assignment_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Revision     int64     `json:"revision"`

	Stats        GradeStats         `json:"stats"`
	Distribution []GradeBand        `json:"distribution"`
	Hardest      []QuestionStats    `json:"hardest_questions"`
	Review       []ReviewItem       `json:"review"`
	Pending      []PendingPageBrief `json:"pending"`
}

// GradeBand counts records whose percentage falls in [Min, Max)
type GradeBand struct {
	Letter string  `json:"letter"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// ReviewItem names a record a reviewer should look at and why
type ReviewItem struct {
	StudentID  string      `json:"student_id"`
	Percentage float64     `json:"percentage"`
	Source     string      `json:"source"`
	Flags      []GradeFlag `json:"flags"`
	Notes      string      `json:"notes,omitempty"`
}

// PendingPageBrief is a ledger entry without its bubble readings
type PendingPageBrief struct {
	PageNumber     int                `json:"page_number"`
	BatchID        string             `json:"batch_id,omitempty"`
	Reason         UnresolvedReason   `json:"reason"`
	Classification PageClassification `json:"classification"`
	OCRStudentName string             `json:"ocr_student_name,omitempty"`
	TopCandidate   string             `json:"top_candidate,omitempty"`
}
