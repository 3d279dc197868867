// Package local provides an on-disk backend: audio objects as files and
// rows in a sqlite database.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/alkime/callcoach/internal/domain"
)

// BlobStore keeps audio objects under a root directory.
type BlobStore struct {
	root string
}

// NewBlobStore creates the root directory if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", root, err)
	}
	return &BlobStore{root: root}, nil
}

func (b *BlobStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", domain.ValidationError("invalid object path: " + path)
	}
	return filepath.Join(b.root, clean), nil
}

// Put writes data atomically. Existing objects are never overwritten.
func (b *BlobStore) Put(_ context.Context, path, _ string, data []byte) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(full); err == nil {
		return domain.PersistenceError("failed to store audio", fmt.Errorf("object %s already exists", path))
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return domain.PersistenceError("failed to store audio", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return domain.PersistenceError("failed to store audio", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.PersistenceError("failed to store audio", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.PersistenceError("failed to store audio", err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return domain.PersistenceError("failed to store audio", err)
	}

	return nil
}

// Get reads the object at path.
func (b *BlobStore) Get(_ context.Context, path string) ([]byte, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NotFoundError("audio object not found: " + path)
	}
	if err != nil {
		return nil, domain.PersistenceError("failed to fetch audio", err)
	}

	return data, nil
}

// Delete removes the object. Missing objects are not an error.
func (b *BlobStore) Delete(_ context.Context, path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.PersistenceError("failed to delete audio", err)
	}

	return nil
}
