package sdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
)

const maxPathLength = 4096

// NormalizePath validates a user-supplied file path and returns it absolute and
// cleaned. The file must exist and be a regular file.
func NormalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", apperrors.NewValidationError("file path cannot be empty")
	case len(path) > maxPathLength:
		return "", apperrors.NewValidationError("file path too long", fmt.Sprintf("%d bytes", len(path)))
	case strings.ContainsRune(path, 0):
		return "", apperrors.NewValidationError("file path contains invalid characters")
	case !utf8.ValidString(path):
		return "", apperrors.NewValidationError("file path contains invalid UTF-8 encoding")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.NewValidationError("cannot resolve file path", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", apperrors.NewValidationError("cannot access file", abs)
	}
	if !info.Mode().IsRegular() {
		return "", apperrors.NewValidationError("not a regular file", abs)
	}
	return abs, nil
}

// NormalizePaths applies NormalizePath to every entry.
func NormalizePaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, apperrors.NewValidationError("at least one file path is required")
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := NormalizePath(p)
		if err != nil {
			return nil, err
		}
		out[i] = abs
	}
	return out, nil
}

// ReadFile validates the path and parses the file.
func (p *Parser) ReadFile(path string) (*File, error) {
	abs, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, apperrors.WrapError(err, "reading %s", abs)
	}
	return p.Parse(abs, data)
}

// ReadRegionIntegrated reads a file and keeps only its region-integrated profiles.
func (p *Parser) ReadRegionIntegrated(path string) (*File, error) {
	f, err := p.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.RegionIntegrated(), nil
}
