package main

import (
	"encoding/json"
	"fmt"
	"os"

	"billing/internal/domain"
)

// loadSeedStudents reads a JSON array of students. An empty path seeds nothing.
func loadSeedStudents(path string) ([]domain.Student, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var students []domain.Student
	if err := json.Unmarshal(raw, &students); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, s := range students {
		if s.ID == "" {
			return nil, fmt.Errorf("seed file %s: student %d has no id", path, i)
		}
	}
	return students, nil
}
