package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"go-scantron-grader/pkg/models"
)

// answerKeyFile is the on-disk layout of <dir>/<assignmentId>.yaml
type answerKeyFile struct {
	AssignmentID string                             `yaml:"assignmentId"`
	Versions     map[string][]models.AnswerKeyEntry `yaml:"versions"`
}

// FileAnswerKeySource reads answer keys from a directory of YAML files and
// caches each assignment after the first read.
type FileAnswerKeySource struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]models.AnswerKeys
}

// NewFileAnswerKeySource creates a source rooted at dir
func NewFileAnswerKeySource(dir string) *FileAnswerKeySource {
	return &FileAnswerKeySource{dir: dir, cache: make(map[string]models.AnswerKeys)}
}

func (s *FileAnswerKeySource) AnswerKey(ctx context.Context, assignmentID, versionID string) ([]models.AnswerKeyEntry, error) {
	versions, err := s.Versions(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return lookupVersion(versions, assignmentID, versionID)
}

func (s *FileAnswerKeySource) Versions(ctx context.Context, assignmentID string) (models.AnswerKeys, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	cached, ok := s.cache[assignmentID]
	s.mu.RUnlock()
	if ok {
		return cloneKeys(cached), nil
	}

	versions, err := s.load(assignmentID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[assignmentID] = versions
	s.mu.Unlock()
	return cloneKeys(versions), nil
}

func (s *FileAnswerKeySource) load(assignmentID string) (models.AnswerKeys, error) {
	if assignmentID == "" || strings.ContainsAny(assignmentID, `/\`) || assignmentID == ".." {
		return nil, fmt.Errorf("%w: assignment %q", ErrAnswerKeyNotFound, assignmentID)
	}
	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(s.dir, assignmentID+ext))
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: assignment %s", ErrAnswerKeyNotFound, assignmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("read answer key: %w", err)
	}
	return ParseAnswerKeys(data, assignmentID)
}

// ParseAnswerKeys decodes and validates an answer key file
func ParseAnswerKeys(data []byte, assignmentID string) (models.AnswerKeys, error) {
	var file answerKeyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnswerKey, err)
	}
	if file.AssignmentID != "" && file.AssignmentID != assignmentID {
		return nil, fmt.Errorf("%w: file is for assignment %s, not %s", ErrInvalidAnswerKey, file.AssignmentID, assignmentID)
	}
	if len(file.Versions) == 0 {
		return nil, fmt.Errorf("%w: no versions", ErrInvalidAnswerKey)
	}
	keys := make(models.AnswerKeys, len(file.Versions))
	for version, entries := range file.Versions {
		key, err := NormalizeAnswerKey(entries)
		if err != nil {
			return nil, fmt.Errorf("version %s: %w", version, err)
		}
		keys[version] = key
	}
	return keys, nil
}

// NormalizeAnswerKey validates a key and returns it sorted by question
// number with upper-case labels. Missing points default to 1.
func NormalizeAnswerKey(entries []models.AnswerKeyEntry) ([]models.AnswerKeyEntry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidAnswerKey)
	}
	seen := make(map[int]bool, len(entries))
	out := make([]models.AnswerKeyEntry, len(entries))
	for i, e := range entries {
		switch {
		case e.QuestionNumber < 1:
			return nil, fmt.Errorf("%w: question number %d", ErrInvalidAnswerKey, e.QuestionNumber)
		case seen[e.QuestionNumber]:
			return nil, fmt.Errorf("%w: duplicate question %d", ErrInvalidAnswerKey, e.QuestionNumber)
		case strings.TrimSpace(e.CorrectAnswer) == "":
			return nil, fmt.Errorf("%w: question %d has no answer", ErrInvalidAnswerKey, e.QuestionNumber)
		case e.Points < 0:
			return nil, fmt.Errorf("%w: question %d has negative points", ErrInvalidAnswerKey, e.QuestionNumber)
		}
		seen[e.QuestionNumber] = true
		e.CorrectAnswer = strings.ToUpper(strings.TrimSpace(e.CorrectAnswer))
		if e.Points == 0 {
			e.Points = 1
		}
		if e.QuestionID == "" {
			e.QuestionID = fmt.Sprintf("q%d", e.QuestionNumber)
		}
		out[i] = e
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

// StaticAnswerKeySource serves keys supplied in memory, e.g. inline with a batch request
type StaticAnswerKeySource struct {
	keys map[string]models.AnswerKeys
}

// NewStaticAnswerKeySource validates and stores keys per assignment
func NewStaticAnswerKeySource(keys map[string]models.AnswerKeys) (*StaticAnswerKeySource, error) {
	out := make(map[string]models.AnswerKeys, len(keys))
	for assignment, versions := range keys {
		normalized := make(models.AnswerKeys, len(versions))
		for version, entries := range versions {
			key, err := NormalizeAnswerKey(entries)
			if err != nil {
				return nil, fmt.Errorf("assignment %s version %s: %w", assignment, version, err)
			}
			normalized[version] = key
		}
		out[assignment] = normalized
	}
	return &StaticAnswerKeySource{keys: out}, nil
}

func (s *StaticAnswerKeySource) AnswerKey(ctx context.Context, assignmentID, versionID string) ([]models.AnswerKeyEntry, error) {
	versions, err := s.Versions(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return lookupVersion(versions, assignmentID, versionID)
}

func (s *StaticAnswerKeySource) Versions(_ context.Context, assignmentID string) (models.AnswerKeys, error) {
	versions, ok := s.keys[assignmentID]
	if !ok {
		return nil, fmt.Errorf("%w: assignment %s", ErrAnswerKeyNotFound, assignmentID)
	}
	return cloneKeys(versions), nil
}

// ChainAnswerKeySource asks each source in order and returns the first key found
type ChainAnswerKeySource []AnswerKeySource

func (c ChainAnswerKeySource) AnswerKey(ctx context.Context, assignmentID, versionID string) ([]models.AnswerKeyEntry, error) {
	for _, src := range c {
		key, err := src.AnswerKey(ctx, assignmentID, versionID)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrAnswerKeyNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: assignment %s version %s", ErrAnswerKeyNotFound, assignmentID, versionID)
}

// Versions merges the versions of every source; earlier sources win on conflicts
func (c ChainAnswerKeySource) Versions(ctx context.Context, assignmentID string) (models.AnswerKeys, error) {
	out := models.AnswerKeys{}
	for i := len(c) - 1; i >= 0; i-- {
		versions, err := c[i].Versions(ctx, assignmentID)
		if errors.Is(err, ErrAnswerKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for v, key := range versions {
			out[v] = key
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: assignment %s", ErrAnswerKeyNotFound, assignmentID)
	}
	return out, nil
}

func lookupVersion(versions models.AnswerKeys, assignmentID, versionID string) ([]models.AnswerKeyEntry, error) {
	key, ok := versions[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: assignment %s version %s", ErrAnswerKeyNotFound, assignmentID, versionID)
	}
	return key, nil
}

func cloneKeys(keys models.AnswerKeys) models.AnswerKeys {
	out := make(models.AnswerKeys, len(keys))
	for v, key := range keys {
		out[v] = slices.Clone(key)
	}
	return out
}
