package recipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parse decodes a recipe from YAML (or JSON) bytes. It performs no semantic
// checks; call Validate on the result before running it.
func Parse(data []byte) (*Recipe, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("recipe: definition payload is empty")
	}
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("recipe: decode definition: %w", err)
	}
	return &r, nil
}

// LoadReader reads recipe data from an io.Reader.
func LoadReader(r io.Reader) (*Recipe, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("recipe: read definition: %w", err)
	}
	return Parse(content)
}

// LoadFile loads a recipe from an explicit file path.
func LoadFile(path string) (*Recipe, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipe: read %s: %w", path, err)
	}
	r, parseErr := Parse(content)
	if parseErr != nil {
		return nil, fmt.Errorf("recipe: %s: %w", path, parseErr)
	}
	r.Source = filepath.Clean(path)
	return r, nil
}

// Load parses and validates in one call. The recipe is returned alongside
// the report even when validation fails so callers can still render it.
func Load(r io.Reader, opts ValidateOptions) (*Recipe, Report, error) {
	parsed, err := LoadReader(r)
	if err != nil {
		return nil, Report{}, err
	}
	report := Validate(parsed, opts)
	return parsed, report, report.Err()
}
