// Package blobstore is the opaque-name filesystem blob store the report
// builder writes to and the download orchestrator streams from: a flat
// directory keyed by UUID plus a format extension. Grounded on the
// original FileStorage, but filenames are reserved (not eagerly created)
// so a DlRequest row can hold a unique name before any bytes are written
// — see DESIGN.md Open Question #3.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store roots every blob under a single directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir. dir is created if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// GenerateFilename reserves a new opaque name with the given extension
// (e.g. "xml"). It does not create the file — the caller creates it when
// it actually has bytes to write, which is the report builder.
func (s *Store) GenerateFilename(ext string) string {
	return fmt.Sprintf("%s.%s", uuid.New().String(), ext)
}

// Path resolves a filename (as stored on a DlRequest) to an absolute path
// under the store's root.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.root, filename)
}

// Create opens filename for writing, truncating any existing content.
// Used only by the report builder, once, at the start of a build.
func (s *Store) Create(filename string) (io.WriteCloser, error) {
	f, err := os.Create(s.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("blobstore: create %s: %w", filename, err)
	}
	return f, nil
}

// Open opens filename for reading. Used by the download orchestrator once
// a build has completed (state VALID).
func (s *Store) Open(filename string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", filename, err)
	}
	return f, nil
}

// Stat returns the size of filename, used to set Content-Length on a
// cache-hit download response.
func (s *Store) Stat(filename string) (int64, error) {
	fi, err := os.Stat(s.Path(filename))
	if err != nil {
		return 0, fmt.Errorf("blobstore: stat %s: %w", filename, err)
	}
	return fi.Size(), nil
}
