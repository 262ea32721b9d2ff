package identify

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"

	"go-scantron-grader/pkg/models"
)

// MatchOptions controls how OCR names are matched to the roster
type MatchOptions struct {
	AutoAcceptScore    float64 // top score needed to identify without review of candidates
	AutoAcceptMargin   float64 // lead the top score needs over the runner-up
	CandidateThreshold float64 // minimum score to be listed as a candidate
	MaxCandidates      int
}

// DefaultMatchOptions returns the standard matching thresholds
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		AutoAcceptScore:    0.85,
		AutoAcceptMargin:   0.10,
		CandidateThreshold: 0.40,
		MaxCandidates:      5,
	}
}

// MatchResult is the outcome of matching one name
type MatchResult struct {
	// Match is set only for a unique, confident match
	Match      *models.StudentCandidate
	Candidates []models.StudentCandidate
}

// RosterMatcher scores OCR names against a class roster
type RosterMatcher struct {
	roster []models.RosterEntry
	opts   MatchOptions
}

// NewRosterMatcher creates a matcher for one batch's roster
func NewRosterMatcher(roster []models.RosterEntry, opts MatchOptions) *RosterMatcher {
	return &RosterMatcher{roster: roster, opts: opts}
}

// Match ranks roster entries by similarity to name
func (m *RosterMatcher) Match(name string) MatchResult {
	query := normalizeName(name)
	if query == "" || len(m.roster) == 0 {
		return MatchResult{}
	}

	scored := make([]models.StudentCandidate, 0, len(m.roster))
	for _, entry := range m.roster {
		scored = append(scored, models.StudentCandidate{
			StudentID: entry.StudentID,
			Name:      entry.Name,
			Score:     NameSimilarity(query, entry.Name),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].StudentID < scored[j].StudentID
	})

	var result MatchResult
	for _, c := range scored {
		if c.Score < m.opts.CandidateThreshold || len(result.Candidates) == m.opts.MaxCandidates {
			break
		}
		result.Candidates = append(result.Candidates, c)
	}

	top := scored[0]
	runnerUp := 0.0
	if len(scored) > 1 {
		runnerUp = scored[1].Score
	}
	if top.Score >= m.opts.AutoAcceptScore && top.Score-runnerUp >= m.opts.AutoAcceptMargin {
		result.Match = &top
	}
	return result
}

// NameSimilarity scores two names in [0, 1]. Character similarity tolerates
// OCR misreads; the word score rewards getting whole name parts right. Token
// order is ignored so "Lovelace Ada" matches "Ada Lovelace".
func NameSimilarity(a, b string) float64 {
	a, b = normalizeName(a), normalizeName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	chars := max(charSimilarity(a, b), charSimilarity(sortedTokens(a), sortedTokens(b)))
	words := wordSimilarity(a, b)
	return 0.7*chars + 0.3*words
}

func charSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.Distance(a, b))/float64(longest)
}

func wordSimilarity(a, b string) float64 {
	ref := strings.Fields(sortedTokens(a))
	hyp := strings.Fields(sortedTokens(b))
	_, rate := wer.WER(ref, hyp)
	if rate > 1 {
		return 0
	}
	return 1 - rate
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func normalizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r), r == '-', r == '.', r == ',':
			return ' '
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
