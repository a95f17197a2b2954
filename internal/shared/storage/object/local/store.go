package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"interview-analyzer/internal/shared/storage/object"
)

// Store implements object.Store on the local filesystem. Each bucket is a
// directory directly under baseDir.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// List walks the bucket directory and returns regular files under prefix.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]object.Object, error) {
	root, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}

	var out []object.Object
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, object.Object{
			Bucket:       bucket,
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucket, err)
	}
	return out, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid storage key")
	}

	f, err := os.Open(filepath.Join(root, clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, object.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Ping reports whether the bucket directory exists.
func (s *Store) Ping(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	root, err := s.bucketDir(bucket)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat bucket %s: %w", bucket, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("bucket %s is not a directory", bucket)
	}
	return nil
}

func (s *Store) bucketDir(bucket string) (string, error) {
	b := strings.TrimSpace(bucket)
	if b == "" || strings.ContainsAny(b, `/\`) || b == "." || b == ".." {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	return filepath.Join(s.baseDir, b), nil
}

var _ object.Store = (*Store)(nil)
