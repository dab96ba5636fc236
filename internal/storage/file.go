package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-publisher/internal/filesystem"
	"media-publisher/internal/logging"
	"media-publisher/internal/metrics"
)

// FileBackend writes assets directly to root/<dir>/<name>.<ext>.
type FileBackend struct {
	root  string
	now   Clock
	retry filesystem.RetryConfig
}

// NewFileBackend returns a direct-path backend rooted at root.
func NewFileBackend(root string, now Clock) *FileBackend {
	if now == nil {
		now = time.Now
	}
	return &FileBackend{
		root:  root,
		now:   now,
		retry: filesystem.DefaultRetryConfig(),
	}
}

// Name implements Backend.
func (b *FileBackend) Name() string { return BackendFile }

// RequiresExtension implements Backend. Plain files carry their type in the name.
func (b *FileBackend) RequiresExtension() bool { return true }

// Create implements Backend. The file is created with O_EXCL so an existing
// asset is never overwritten.
func (b *FileBackend) Create(ctx context.Context, target Target) (Destination, error) {
	if err := ValidateDisplayName(target.DisplayName); err != nil {
		return nil, err
	}

	dir, name := Name(target, true, b.now)
	dirPath := filepath.Join(b.root, dir)

	start := time.Now()
	err := filesystem.MkdirAllWithRetry(dirPath, 0o755, b.retry)
	filesystem.ObserveOperation(dirPath, "mkdir", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}

	return claim(BackendFile, name, target.Ext != "", func(candidate string) (Destination, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := filepath.Join(dirPath, candidate)
		f, err := filesystem.CreateExclusiveWithRetry(p, 0o644, b.retry)
		if errors.Is(err, os.ErrExist) {
			return nil, errTaken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", p, err)
		}
		abs, absErr := filepath.Abs(p)
		if absErr != nil {
			abs = p
		}
		logging.Debug("Created destination %s", abs)
		return &fileDestination{f: f, path: abs, start: time.Now()}, nil
	})
}

type fileDestination struct {
	f       *os.File
	path    string
	written int64
	start   time.Time
	closed  bool
}

func (d *fileDestination) Write(p []byte) (int, error) {
	n, err := d.f.Write(p)
	d.written += int64(n)
	return n, err
}

// Close syncs so the index never observes a truncated file.
func (d *fileDestination) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	syncErr := d.f.Sync()
	closeErr := d.f.Close()
	err := errors.Join(syncErr, closeErr)
	filesystem.ObserveOperation(d.path, "write", d.start, err)
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", d.path, err)
	}
	metrics.PublishBytesWritten.WithLabelValues(BackendFile).Add(float64(d.written))
	return nil
}

func (d *fileDestination) Abort() error {
	if !d.closed {
		d.closed = true
		if err := d.f.Close(); err != nil {
			logging.Warn("failed to close aborted destination %s: %v", d.path, err)
		}
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *fileDestination) Location() string  { return d.path }
func (d *fileDestination) LocalPath() string { return d.path }
