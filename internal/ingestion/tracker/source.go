package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source is something an ingestion job can read lines from.
type Source interface {
	// Name identifies the source in job records and logs.
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a file from disk. Uploaded files set RemoveAfter so the
// temporary copy is deleted once the job has read it.
type FileSource struct {
	Path        string
	RemoveAfter bool
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) Open(context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if s.RemoveAfter {
			_ = os.Remove(s.Path)
		}
		return nil, fmt.Errorf("opening %s: %w", s.Path, err)
	}
	if !s.RemoveAfter {
		return f, nil
	}
	return &removingFile{File: f}, nil
}

type removingFile struct {
	*os.File
}

func (f *removingFile) Close() error {
	closeErr := f.File.Close()
	if err := os.Remove(f.File.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, fmt.Errorf("removing %s: %w", f.File.Name(), err))
	}
	return closeErr
}

// ReaderSource wraps an in-memory reader.
type ReaderSource struct {
	Label  string
	Reader io.Reader
}

func (s ReaderSource) Name() string { return s.Label }

func (s ReaderSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(s.Reader), nil
}

// StringSource is a ReaderSource over literal content.
func StringSource(label, content string) ReaderSource {
	return ReaderSource{Label: label, Reader: strings.NewReader(content)}
}
