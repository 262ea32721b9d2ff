package merge

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go-scantron-grader/pkg/models"
)

// ComputeStats derives the aggregate numbers from scratch. Standard
// deviation is the sample deviation and is 0 below two records.
func ComputeStats(records []models.GradeRecord) models.GradeStats {
	stats := models.GradeStats{Count: len(records), Questions: []models.QuestionStats{}}
	if len(records) == 0 {
		return stats
	}

	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.Percentage
		if r.NeedsReview {
			stats.NeedsReview++
		}
	}

	stats.AverageScore = stat.Mean(scores, nil)
	stats.HighScore = floats.Max(scores)
	stats.LowScore = floats.Min(scores)
	stats.MedianScore = median(scores)
	if len(scores) > 1 {
		stats.StandardDeviation = stat.StdDev(scores, nil)
	}
	stats.Questions = questionStats(records)
	return stats
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func questionStats(records []models.GradeRecord) []models.QuestionStats {
	byNumber := make(map[int]*models.QuestionStats)
	for _, r := range records {
		for _, a := range r.Answers {
			qs, ok := byNumber[a.QuestionNumber]
			if !ok {
				qs = &models.QuestionStats{QuestionNumber: a.QuestionNumber, QuestionID: a.QuestionID}
				byNumber[a.QuestionNumber] = qs
			}
			switch {
			case a.Correct:
				qs.Correct++
			case a.Skipped:
				qs.Skipped++
			default:
				qs.Incorrect++
			}
		}
	}

	out := make([]models.QuestionStats, 0, len(byNumber))
	for _, qs := range byNumber {
		total := float64(qs.Correct + qs.Incorrect + qs.Skipped)
		qs.CorrectRate = float64(qs.Correct) / total
		qs.IncorrectRate = float64(qs.Incorrect) / total
		qs.SkippedRate = float64(qs.Skipped) / total
		out = append(out, *qs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out
}
