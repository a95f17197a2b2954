package scoring

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"interview-analyzer/internal/shared/storage/object"
	"interview-analyzer/internal/shared/util"
)

// Handle points at a downloaded media file. Cleanup removes its temp directory.
type Handle struct {
	Path   string
	Size   int64
	Source object.Object
	dir    string
}

// Cleanup removes the handle's temp directory. Safe on a zero Handle.
func (h Handle) Cleanup() error {
	if h.dir == "" {
		return nil
	}
	return os.RemoveAll(h.dir)
}

// StoreDownloader copies objects from an object.Store into per-job temp dirs.
type StoreDownloader struct {
	Store   object.Store
	TempDir string
}

// Download implements Downloader.
func (d *StoreDownloader) Download(ctx context.Context, obj object.Object) (Handle, error) {
	name, err := util.MediaFileName(obj.Key)
	if err != nil {
		return Handle{}, fmt.Errorf("media key %q: %w", obj.Key, err)
	}
	rc, err := d.Store.Open(ctx, obj.Bucket, obj.Key)
	if err != nil {
		return Handle{}, fmt.Errorf("open %s/%s: %w", obj.Bucket, obj.Key, err)
	}
	defer rc.Close()

	dir, err := os.MkdirTemp(d.TempDir, "interview-*")
	if err != nil {
		return Handle{}, fmt.Errorf("create temp dir: %w", err)
	}
	h := Handle{Path: filepath.Join(dir, name), Source: obj, dir: dir}

	f, err := os.Create(h.Path)
	if err != nil {
		_ = h.Cleanup()
		return Handle{}, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: rc})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = h.Cleanup()
		return Handle{}, fmt.Errorf("copy %s: %w", obj.Key, err)
	}
	h.Size = n
	return h, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
