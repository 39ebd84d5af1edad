// Package storage abstracts the blob store that backs message attachments
// and profile media. Callers hand over raw bytes plus a logical category and
// get back an opaque path; the store never interprets content beyond the
// size and name checks performed at the transport edge.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Delete and Exists-style operations when the
// referenced blob is absent. Deletion flows treat it as "already gone",
// not as a failure.
var ErrNotFound = errors.New("blob not found")

// Known storage categories. The category selects the logical bucket or
// directory a blob lands in.
const (
	CategoryChat    = "chat"
	CategoryAvatars = "avatars"
)

// StoredFile describes a persisted blob: the opaque path used to address it
// later, the sanitized original name, and the byte size actually written.
type StoredFile struct {
	Path string
	Name string
	Size int64
}

// BlobStore is the attachment handler contract. Implementations must be safe
// for concurrent use.
type BlobStore interface {
	// Store persists the reader's content under a fresh key within category
	// and returns the resulting file record.
	Store(ctx context.Context, r io.Reader, category, filename string) (*StoredFile, error)

	// Exists reports whether a previously stored path still resolves.
	// Backends may be eventually consistent; a stale answer after a recent
	// delete is acceptable.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the blob at path. Returns ErrNotFound when the blob is
	// already absent and a backend error for real failures.
	Delete(ctx context.Context, path string) error
}

const maxStoredNameLen = 255

// SanitizeName reduces a client-supplied filename to a safe base name:
// directory components are stripped, whitespace trimmed, and overlong names
// truncated. An unusable name degrades to "file".
func SanitizeName(raw string) string {
	name := filepath.Base(strings.TrimSpace(raw))
	if name == "" || name == "." || name == string(filepath.Separator) || strings.Contains(name, "..") {
		name = "file"
	}
	if len(name) > maxStoredNameLen {
		name = name[:maxStoredNameLen]
	}
	return name
}
