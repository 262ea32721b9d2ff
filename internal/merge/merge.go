// Package merge folds graded batches into a grade book and recomputes its statistics.
package merge

import (
	"sort"

	"go-scantron-grader/internal/ledger"
	"go-scantron-grader/pkg/models"
)

// Batch is the output of one grading run
type Batch struct {
	Records      []models.GradeRecord
	Unidentified []models.UnidentifiedPage
}

// Merge returns a new grade book with the batch folded into existing.
// Records are keyed by student id and an incoming record replaces the
// stored one wholesale. Within the batch, the record from the later page
// wins. Ledger entries are keyed by batch id and page number: a stored
// entry is dropped when the same page of the same batch gets a record, and
// replaced by an incoming entry with the same key. Entries from other
// batches are never touched.
// Statistics are recomputed from the merged records. existing is never
// modified; a nil existing merges into an empty book.
func Merge(existing *models.GradeBook, incoming Batch) *models.GradeBook {
	var out *models.GradeBook
	if existing == nil {
		out = models.NewGradeBook("")
	} else {
		out = existing.Clone()
	}

	latest := latestPerStudent(incoming.Records)

	byStudent := make(map[string]int, len(out.Records))
	for i, r := range out.Records {
		byStudent[r.StudentID] = i
	}
	graded := make(map[ledger.Key]bool, len(incoming.Records))
	for _, r := range incoming.Records {
		graded[ledger.Key{BatchID: r.BatchID, PageNumber: r.ScantronPageNumber}] = true
	}
	for _, r := range latest {
		if i, ok := byStudent[r.StudentID]; ok {
			out.Records[i] = r.Clone()
			continue
		}
		byStudent[r.StudentID] = len(out.Records)
		out.Records = append(out.Records, r.Clone())
	}
	sort.Slice(out.Records, func(i, j int) bool { return out.Records[i].StudentID < out.Records[j].StudentID })

	pages := make(map[ledger.Key]models.UnidentifiedPage, len(out.Unidentified)+len(incoming.Unidentified))
	for _, p := range out.Unidentified {
		if !graded[ledger.KeyOf(p)] {
			pages[ledger.KeyOf(p)] = p
		}
	}
	for _, p := range incoming.Unidentified {
		pages[ledger.KeyOf(p)] = p.Clone()
	}
	out.Unidentified = make([]models.UnidentifiedPage, 0, len(pages))
	for _, p := range pages {
		out.Unidentified = append(out.Unidentified, p)
	}
	ledger.SortPages(out.Unidentified)

	out.Stats = ComputeStats(out.Records)
	return out
}

// latestPerStudent keeps one record per student, preferring the higher
// page number and, on a tie, the later position in the slice.
func latestPerStudent(records []models.GradeRecord) []models.GradeRecord {
	index := make(map[string]int, len(records))
	out := make([]models.GradeRecord, 0, len(records))
	for _, r := range records {
		i, ok := index[r.StudentID]
		if !ok {
			index[r.StudentID] = len(out)
			out = append(out, r)
			continue
		}
		if r.ScantronPageNumber >= out[i].ScantronPageNumber {
			out[i] = r
		}
	}
	return out
}
