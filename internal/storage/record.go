package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"media-publisher/internal/database"
	"media-publisher/internal/filesystem"
	"media-publisher/internal/logging"
	"media-publisher/internal/mediatypes"
	"media-publisher/internal/metrics"
)

// RecordStore is the part of the media database the record backend needs.
type RecordStore interface {
	InsertPending(ctx context.Context, rec *database.MediaRecord, dataPathFor func(id int64) string) error
	FinalizeRecord(ctx context.Context, id, size int64) error
	DeleteRecord(ctx context.Context, id int64) error
}

// RecordBackend inserts a structured media record and stores the bytes in a
// data file named after the record id. The MIME type lives in the record,
// so display names carry no extension.
type RecordBackend struct {
	store RecordStore
	root  string
	now   Clock
	retry filesystem.RetryConfig
}

// NewRecordBackend returns a record backend writing data files under root.
func NewRecordBackend(store RecordStore, root string, now Clock) *RecordBackend {
	if now == nil {
		now = time.Now
	}
	return &RecordBackend{
		store: store,
		root:  root,
		now:   now,
		retry: filesystem.DefaultRetryConfig(),
	}
}

// Name implements Backend.
func (b *RecordBackend) Name() string { return BackendRecord }

// RequiresExtension implements Backend.
func (b *RecordBackend) RequiresExtension() bool { return false }

// Create implements Backend. The record stays pending until Close.
func (b *RecordBackend) Create(ctx context.Context, target Target) (Destination, error) {
	if err := ValidateDisplayName(target.DisplayName); err != nil {
		return nil, err
	}

	dir, name := Name(target, false, b.now)
	dirPath := filepath.Join(b.root, dir)

	start := time.Now()
	err := filesystem.MkdirAllWithRetry(dirPath, 0o755, b.retry)
	filesystem.ObserveOperation(dirPath, "mkdir", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}

	dataExt := mediatypes.ExtensionForMime(target.MimeType)
	if dataExt == "" && target.Ext != "" {
		dataExt = "." + target.Ext
	}

	rec, err := claim(BackendRecord, name, false, func(candidate string) (*database.MediaRecord, error) {
		rec := &database.MediaRecord{
			DisplayName:  candidate,
			RelativePath: dir,
			MimeType:     target.MimeType,
			Kind:         target.Kind,
		}
		err := b.store.InsertPending(ctx, rec, func(id int64) string {
			return filepath.Join(dirPath, strconv.FormatInt(id, 10)+dataExt)
		})
		if errors.Is(err, database.ErrNameTaken) {
			return nil, errTaken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert media record: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	f, err := filesystem.CreateExclusiveWithRetry(rec.DataPath, 0o644, b.retry)
	if err != nil {
		if delErr := b.store.DeleteRecord(context.WithoutCancel(ctx), rec.ID); delErr != nil {
			logging.Warn("failed to delete pending record %d: %v", rec.ID, delErr)
		}
		return nil, fmt.Errorf("failed to create data file %s: %w", rec.DataPath, err)
	}

	logging.Debug("Created pending record %d (%s/%s) -> %s", rec.ID, dir, rec.DisplayName, rec.DataPath)
	return &recordDestination{
		ctx:   context.WithoutCancel(ctx),
		store: b.store,
		rec:   rec,
		f:     f,
		start: time.Now(),
	}, nil
}

type recordDestination struct {
	ctx     context.Context
	store   RecordStore
	rec     *database.MediaRecord
	f       *os.File
	written int64
	start   time.Time
	closed  bool
}

func (d *recordDestination) Write(p []byte) (int, error) {
	n, err := d.f.Write(p)
	d.written += int64(n)
	return n, err
}

// Close syncs the data file and then clears the pending flag, so the record
// is only visible once its bytes are complete.
func (d *recordDestination) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	err := errors.Join(d.f.Sync(), d.f.Close())
	filesystem.ObserveOperation(d.rec.DataPath, "write", d.start, err)
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", d.rec.DataPath, err)
	}
	if err := d.store.FinalizeRecord(d.ctx, d.rec.ID, d.written); err != nil {
		return fmt.Errorf("failed to finalize record %d: %w", d.rec.ID, err)
	}
	metrics.PublishBytesWritten.WithLabelValues(BackendRecord).Add(float64(d.written))
	return nil
}

func (d *recordDestination) Abort() error {
	if !d.closed {
		d.closed = true
		if err := d.f.Close(); err != nil {
			logging.Warn("failed to close aborted data file %s: %v", d.rec.DataPath, err)
		}
	}
	var errs []error
	if err := os.Remove(d.rec.DataPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := d.store.DeleteRecord(d.ctx, d.rec.ID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *recordDestination) Location() string  { return d.rec.URI() }
func (d *recordDestination) LocalPath() string { return d.rec.DataPath }
