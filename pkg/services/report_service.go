package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-scantron-grader/internal/service"
	"go-scantron-grader/pkg/models"
)

// DefaultHardestQuestions is how many questions a report lists as hardest
const DefaultHardestQuestions = 5

// letterBands are checked top down; the first band whose Min is reached wins
var letterBands = []models.GradeBand{
	{Letter: "A", Min: 90, Max: 100},
	{Letter: "B", Min: 80, Max: 90},
	{Letter: "C", Min: 70, Max: 80},
	{Letter: "D", Min: 60, Max: 70},
	{Letter: "F", Min: 0, Max: 60},
}

// ReportService builds reviewer-facing summaries from grade books
type ReportService struct {
	grading service.GradingService
	hardest int
	now     func() time.Time
}

// NewReportService creates a report service. hardest <= 0 uses the default.
func NewReportService(grading service.GradingService, hardest int) *ReportService {
	if hardest <= 0 {
		hardest = DefaultHardestQuestions
	}
	return &ReportService{grading: grading, hardest: hardest, now: time.Now}
}

// Report loads the current grade book of an assignment and summarizes it
func (s *ReportService) Report(ctx context.Context, assignmentID string) (*models.AssignmentReport, error) {
	book, err := s.grading.GradeBook(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grade book: %w", err)
	}
	report := BuildReport(book, s.hardest)
	report.GeneratedAt = s.now().UTC()
	return report, nil
}

// BuildReport summarizes a grade book. It only reads the book.
func BuildReport(book *models.GradeBook, hardest int) *models.AssignmentReport {
	report := &models.AssignmentReport{
		AssignmentID: book.AssignmentID,
		Revision:     book.Revision,
		Stats:        book.Stats,
		Distribution: Distribution(book.Records),
		Hardest:      HardestQuestions(book.Stats.Questions, hardest),
		Review:       make([]models.ReviewItem, 0),
		Pending:      make([]models.PendingPageBrief, 0, len(book.Unidentified)),
	}

	for _, r := range book.Records {
		if !r.NeedsReview {
			continue
		}
		report.Review = append(report.Review, models.ReviewItem{
			StudentID:  r.StudentID,
			Percentage: r.Percentage,
			Source:     string(r.Source),
			Flags:      r.Flags,
			Notes:      r.ReviewNotes,
		})
	}
	sort.Slice(report.Review, func(i, j int) bool {
		return report.Review[i].StudentID < report.Review[j].StudentID
	})

	for _, p := range book.Unidentified {
		brief := models.PendingPageBrief{
			PageNumber:     p.PageNumber,
			BatchID:        p.BatchID,
			Reason:         p.Reason,
			Classification: p.Classification,
		}
		if p.OCRStudentName != nil {
			brief.OCRStudentName = *p.OCRStudentName
		}
		if len(p.Candidates) > 0 {
			brief.TopCandidate = p.Candidates[0].StudentID
		}
		report.Pending = append(report.Pending, brief)
	}
	return report
}

// Distribution counts records per letter band
func Distribution(records []models.GradeRecord) []models.GradeBand {
	bands := make([]models.GradeBand, len(letterBands))
	copy(bands, letterBands)
	for _, r := range records {
		for i := range bands {
			if r.Percentage >= bands[i].Min {
				bands[i].Count++
				break
			}
		}
	}
	return bands
}

// HardestQuestions returns up to n questions with the lowest correct rate.
// Questions nobody answered are left out.
func HardestQuestions(questions []models.QuestionStats, n int) []models.QuestionStats {
	answered := make([]models.QuestionStats, 0, len(questions))
	for _, q := range questions {
		if q.Correct+q.Incorrect > 0 {
			answered = append(answered, q)
		}
	}
	sort.SliceStable(answered, func(i, j int) bool {
		if answered[i].CorrectRate != answered[j].CorrectRate {
			return answered[i].CorrectRate < answered[j].CorrectRate
		}
		return answered[i].QuestionNumber < answered[j].QuestionNumber
	})
	if n > 0 && len(answered) > n {
		answered = answered[:n]
	}
	return answered
}
