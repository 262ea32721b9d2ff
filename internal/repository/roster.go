package repository

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go-scantron-grader/pkg/models"
)

type rosterFile struct {
	Students []models.RosterEntry `yaml:"students"`
}

// LoadRoster reads a YAML roster file:
//
//	students:
//	  - studentId: S1
//	    name: Ada Lovelace
func LoadRoster(path string) ([]models.RosterEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes a roster and rejects blank or duplicate student ids
func ParseRoster(data []byte) ([]models.RosterEntry, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	return ValidateRoster(file.Students)
}

// ValidateRoster trims entries and rejects blank or duplicate ids
func ValidateRoster(entries []models.RosterEntry) ([]models.RosterEntry, error) {
	seen := make(map[string]bool, len(entries))
	out := make([]models.RosterEntry, 0, len(entries))
	for i, e := range entries {
		e.StudentID = strings.TrimSpace(e.StudentID)
		e.Name = strings.TrimSpace(e.Name)
		if e.StudentID == "" || e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d needs a student id and a name", ErrInvalidRoster, i+1)
		}
		if seen[e.StudentID] {
			return nil, fmt.Errorf("%w: duplicate student %s", ErrInvalidRoster, e.StudentID)
		}
		seen[e.StudentID] = true
		out = append(out, e)
	}
	return out, nil
}
