// Package filestore persists uploaded visiting-card images on local disk
// and hands out stable reference strings. Deletion is best-effort.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is a local-disk blob store.
type Store struct {
	dir string
}

// New creates the upload directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes src under a fresh random name, keeping the original
// extension, and returns the reference.
func (s *Store) Save(src io.Reader, origName string) (string, error) {
	ref := uuid.New().String() + filepath.Ext(origName)
	out, err := os.Create(filepath.Join(s.dir, ref))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return ref, nil
}

// Delete removes the file behind ref. A blank ref is a no-op.
func (s *Store) Delete(ref string) error {
	if ref == "" {
		return nil
	}
	return os.Remove(filepath.Join(s.dir, filepath.Base(ref)))
}

// Path returns the on-disk location of ref, for serving the file.
func (s *Store) Path(ref string) string {
	return filepath.Join(s.dir, filepath.Base(ref))
}
