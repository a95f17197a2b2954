package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes one stored media object. Key is relative to the store's
// configured prefix.
type Object struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the read side of the content store holding interview recordings.
type Store interface {
	// List returns every object under prefix in bucket. Order is unspecified.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Ping verifies that bucket is reachable.
	Ping(ctx context.Context, bucket string) error
}
