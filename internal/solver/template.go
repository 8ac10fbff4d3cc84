// Package solver drives the external transport code that produces
// uncertainty contribution tables for a set of sensitivity data files.
package solver

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
)

//go:embed default.inp
var defaultTemplate string

// Placeholders substituted into an input template.
const (
	PlaceholderFilenames = "filenames"
	PlaceholderFirstFile = "first_file"
)

// DefaultTemplate returns the built-in input template
func DefaultTemplate() string {
	return defaultTemplate
}

// TemplateStore manages the solver input template
type TemplateStore struct {
	path string
}

// NewTemplateStore creates a store backed by path; an empty path always yields the default
func NewTemplateStore(path string) *TemplateStore {
	return &TemplateStore{path: path}
}

// Load returns the stored template, or the default one when no file exists
func (s *TemplateStore) Load() (string, error) {
	if s.path == "" {
		return DefaultTemplate(), nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultTemplate(), nil
	}
	if err != nil {
		return "", apperrors.NewConfigurationError("failed to read solver template", err)
	}
	return string(data), nil
}

// Save writes a template to the store's path
func (s *TemplateStore) Save(template string) error {
	if s.path == "" {
		return apperrors.NewConfigurationError("solver template path is not configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write solver template: %w", err)
	}
	return nil
}

// Render substitutes ${filenames} with the newline-joined paths and
// ${first_file} with the first path. Other $-expressions are left untouched.
func Render(template string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", apperrors.NewValidationError("at least one sensitivity file is required")
	}
	if !strings.Contains(template, "${"+PlaceholderFilenames+"}") {
		return "", apperrors.NewConfigurationError("solver template has no ${filenames} placeholder", nil)
	}

	return os.Expand(template, func(name string) string {
		switch name {
		case PlaceholderFilenames:
			return strings.Join(paths, "\n")
		case PlaceholderFirstFile:
			return paths[0]
		}
		return "${" + name + "}"
	}), nil
}
