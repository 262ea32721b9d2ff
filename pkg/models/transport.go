package models

// BatchRequest submits a batch of rasterized pages by location.
// Pages are numbered 1..n in the order given.
type BatchRequest struct {
	PageURLs         []string      `json:"page_urls" binding:"required,min=1,dive,required"`
	Roster           []RosterEntry `json:"roster,omitempty" binding:"omitempty,dive"`
	DefaultVersionID string        `json:"default_version_id,omitempty"`
}

// ResolveRequest attributes an unidentified page to a student.
// BatchID picks the page when its number is pending in several batches.
type ResolveRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	VersionID string `json:"version_id,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BatchResponse summarizes one committed grading batch
type BatchResponse struct {
	BatchID           string             `json:"batch_id"`
	AssignmentID      string             `json:"assignment_id"`
	Timestamp         string             `json:"timestamp"`
	ProcessingTimeSec float64            `json:"processing_time_sec"`
	Graded            int                `json:"graded"`
	Unidentified      int                `json:"unidentified"`
	NeedsReview       int                `json:"needs_review"`
	Revision          int64              `json:"revision"`
	Records           []GradeRecord      `json:"records"`
	Pending           []UnidentifiedPage `json:"pending"`
	Stats             GradeStats         `json:"stats"`
}
