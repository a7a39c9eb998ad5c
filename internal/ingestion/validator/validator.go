// Package validator checks ingestion requests before a job is started and
// reports per-field failures.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

const maxPathLength = 4096

// ValidationError holds per-field validation failure messages. It matches
// apperrors.ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidInput }

// IngestPath checks that path names a regular file the server can read and
// returns it cleaned.
func IngestPath(path string) (string, error) {
	fail := func(msg string) (string, error) {
		return "", &ValidationError{Fields: map[string]string{"filePath": msg}}
	}
	if strings.TrimSpace(path) == "" {
		return fail("filePath is required")
	}
	if len(path) > maxPathLength {
		return fail(fmt.Sprintf("filePath must be at most %d characters", maxPathLength))
	}
	if strings.ContainsRune(path, 0) {
		return fail("filePath contains a NUL byte")
	}
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	switch {
	case err != nil:
		return fail("file does not exist or is not accessible")
	case info.IsDir():
		return fail("filePath names a directory")
	case !info.Mode().IsRegular():
		return fail("filePath must name a regular file")
	}
	f, err := os.Open(clean)
	if err != nil {
		return fail("file is not readable")
	}
	f.Close()
	return clean, nil
}
