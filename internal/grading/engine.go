// Package grading scores bubble readings against an answer key.
package grading

import (
	"slices"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"go-scantron-grader/pkg/models"
)

// DefaultLowConfidence is the mean reading confidence below which a record needs review
const DefaultLowConfidence = 0.60

// Engine turns readings plus a key into a GradeRecord. It holds no state
// besides its thresholds and is safe for concurrent use.
type Engine struct {
	lowConfidence float64
	now           func() time.Time
}

// NewEngine creates an engine. A non-positive threshold selects the default.
func NewEngine(lowConfidence float64) *Engine {
	if lowConfidence <= 0 {
		lowConfidence = DefaultLowConfidence
	}
	return &Engine{lowConfidence: lowConfidence, now: time.Now}
}

// Submission is everything the engine needs to score one page
type Submission struct {
	StudentID  string
	Identity   models.Identity
	Source     models.IdentificationSource
	Readings   []models.BubbleReading
	Key        []models.AnswerKeyEntry
	PageNumber int
	BatchID    string

	// Flags raised before grading, e.g. orientation or scan quality
	Flags       []models.GradeFlag
	ReviewNotes string
}

// Grade scores a submission. Questions present on only one side are left
// out of the score and raise unmatched_questions.
func (e *Engine) Grade(sub Submission) models.GradeRecord {
	readings := make(map[int]models.BubbleReading, len(sub.Readings))
	for _, r := range sub.Readings {
		readings[r.QuestionNumber] = r
	}

	key := slices.Clone(sub.Key)
	sort.SliceStable(key, func(i, j int) bool { return key[i].QuestionNumber < key[j].QuestionNumber })

	record := models.GradeRecord{
		StudentID:          sub.StudentID,
		AssignmentID:       sub.Identity.AssignmentID,
		VersionID:          sub.Identity.VersionID,
		Identity:           sub.Identity,
		Source:             sub.Source,
		Answers:            make([]models.AnswerResult, 0, len(key)),
		ReviewNotes:        sub.ReviewNotes,
		ScantronPageNumber: sub.PageNumber,
		BatchID:            sub.BatchID,
		GradedAt:           e.now().UTC(),
	}

	flags := newFlagSet(sub.Flags)
	matched := make(map[int]bool, len(key))
	confidences := make([]float64, 0, len(key))

	for _, entry := range key {
		reading, ok := readings[entry.QuestionNumber]
		if !ok || matched[entry.QuestionNumber] {
			flags.add(models.FlagUnmatchedQuestions)
			continue
		}
		matched[entry.QuestionNumber] = true

		result := scoreAnswer(entry, reading)
		record.Answers = append(record.Answers, result)
		confidences = append(confidences, reading.Confidence)

		record.PossiblePoints += result.PointsPossible
		record.EarnedPoints += result.PointsEarned
		if result.Correct {
			record.RawScore++
		}
		if reading.MultipleMarks {
			flags.add(models.FlagMultipleMarks)
		} else if result.Skipped {
			flags.add(models.FlagUnanswered)
		}
	}
	for number := range readings {
		if !matched[number] {
			flags.add(models.FlagUnmatchedQuestions)
			break
		}
	}

	record.TotalQuestions = len(record.Answers)
	record.Percentage = Percentage(record.RawScore, record.TotalQuestions)

	if len(confidences) > 0 && stat.Mean(confidences, nil) < e.lowConfidence {
		flags.add(models.FlagLowConfidence)
	}
	if sub.Source == models.SourceOCR {
		flags.add(models.FlagOCRIdentified)
	}

	record.Flags = flags.list()
	record.NeedsReview = flags.has(models.FlagMultipleMarks) ||
		flags.has(models.FlagLowConfidence) ||
		flags.has(models.FlagOCRIdentified)
	return record
}

func scoreAnswer(entry models.AnswerKeyEntry, reading models.BubbleReading) models.AnswerResult {
	points := entry.Points
	if points <= 0 {
		points = 1
	}
	selected := NormalizeLabel(reading.Selected)
	correct := NormalizeLabel(entry.CorrectAnswer)

	result := models.AnswerResult{
		QuestionNumber: entry.QuestionNumber,
		QuestionID:     entry.QuestionID,
		Selected:       selected,
		CorrectAnswer:  correct,
		Skipped:        selected == "",
		MultipleMarks:  reading.MultipleMarks,
		Confidence:     reading.Confidence,
		PointsPossible: points,
	}
	if !result.Skipped && selected == correct {
		result.Correct = true
		result.PointsEarned = points
	}
	return result
}

// Percentage is raw over graded as 0-100; 0 when nothing was gradable
func Percentage(raw, graded int) float64 {
	if graded <= 0 || raw <= 0 {
		return 0
	}
	if raw > graded {
		raw = graded
	}
	return float64(raw) / float64(graded) * 100
}

// NormalizeLabel upper-cases and trims a choice label
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// TrimReadings drops readings past the given question count. A
// non-positive count leaves the readings untouched.
func TrimReadings(readings []models.BubbleReading, count int) []models.BubbleReading {
	if count <= 0 {
		return readings
	}
	out := make([]models.BubbleReading, 0, min(count, len(readings)))
	for _, r := range readings {
		if r.QuestionNumber >= 1 && r.QuestionNumber <= count {
			out = append(out, r)
		}
	}
	return out
}

// flagSet keeps insertion order so records serialize deterministically
type flagSet struct {
	seen  map[models.GradeFlag]bool
	order []models.GradeFlag
}

func newFlagSet(initial []models.GradeFlag) *flagSet {
	s := &flagSet{seen: make(map[models.GradeFlag]bool)}
	for _, f := range initial {
		s.add(f)
	}
	return s
}

func (s *flagSet) add(f models.GradeFlag) {
	if s.seen[f] {
		return
	}
	s.seen[f] = true
	s.order = append(s.order, f)
}

func (s *flagSet) has(f models.GradeFlag) bool {
	return s.seen[f]
}

func (s *flagSet) list() []models.GradeFlag {
	if len(s.order) == 0 {
		return nil
	}
	return s.order
}
