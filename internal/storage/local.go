package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore is a disk-backed BlobStore rooted at a single directory, with
// one subdirectory per category. Blob keys are random UUIDs carrying the
// original extension, so client names can never collide or traverse.
type LocalStore struct {
	root string
}

// NewLocalStore creates (if needed) and returns a store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage: root directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: dir}, nil
}

// Store writes the reader's content to <root>/<category>/<uuid><ext> and
// returns the relative path as the blob address.
func (s *LocalStore) Store(ctx context.Context, r io.Reader, category, filename string) (*StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := SanitizeName(filename)
	key := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	rel := filepath.ToSlash(filepath.Join(category, key))

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dst := filepath.Join(dir, key)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Half-written blobs are useless; remove before surfacing the error.
		_ = os.Remove(dst)
		return nil, err
	}

	return &StoredFile{Path: rel, Name: name, Size: n}, nil
}

// Exists reports whether the blob at path is present on disk.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(path)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes the blob at path, mapping a missing file to ErrNotFound.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
