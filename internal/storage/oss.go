package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	oss "github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// OSSStore is a BlobStore backed by an Aliyun OSS bucket. Categories become
// key prefixes within the bucket, so one bucket serves a whole deployment.
type OSSStore struct {
	bucket *oss.Bucket
}

// OSSConfig carries the credentials and addressing for an OSS bucket.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// NewOSSStore dials the OSS endpoint and binds the configured bucket.
func NewOSSStore(cfg OSSConfig) (*OSSStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: OSS endpoint and bucket are required")
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("storage: dial OSS: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: bind bucket %s: %w", cfg.Bucket, err)
	}
	return &OSSStore{bucket: bucket}, nil
}

// Store uploads the reader's content under <category>/<uuid><ext>.
// The object key is the blob address recorded on the message row.
func (s *OSSStore) Store(ctx context.Context, r io.Reader, category, filename string) (*StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := SanitizeName(filename)
	key := path.Join(category, uuid.NewString()+strings.ToLower(filepath.Ext(name)))

	// OSS needs the size up front for non-seekable readers; buffer through a
	// counting wrapper instead by requiring callers to hand a bounded reader.
	counted := &countingReader{r: r}
	if err := s.bucket.PutObject(key, counted); err != nil {
		return nil, fmt.Errorf("storage: put object %s: %w", key, err)
	}

	return &StoredFile{Path: key, Name: name, Size: counted.n}, nil
}

// Exists reports whether the object is still present in the bucket.
func (s *OSSStore) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.bucket.IsObjectExist(p)
	if err != nil {
		return false, fmt.Errorf("storage: head object %s: %w", p, err)
	}
	return ok, nil
}

// Delete removes the object, mapping an already-absent key to ErrNotFound.
// OSS deletes are idempotent, so absence is detected with a head request
// first; a racing delete between the two calls is harmless.
func (s *OSSStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := s.bucket.IsObjectExist(p)
	if err != nil {
		return fmt.Errorf("storage: head object %s: %w", p, err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.bucket.DeleteObject(p); err != nil {
		return fmt.Errorf("storage: delete object %s: %w", p, err)
	}
	return nil
}

// countingReader tracks how many bytes passed through an upload.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
