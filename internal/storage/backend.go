package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"media-publisher/internal/mediatypes"
)

// Backend names accepted by STORAGE_BACKEND.
const (
	BackendFile   = "file"
	BackendRecord = "record"
	BackendS3     = "s3"
)

// ErrInvalidName is returned for display names that would escape the
// destination directory.
var ErrInvalidName = errors.New("invalid display name")

// ErrNamesExhausted is returned when every suffix candidate is taken.
var ErrNamesExhausted = errors.New("no free destination name")

// Target describes the asset a destination is created for.
type Target struct {
	Kind     mediatypes.MediaKind
	MimeType string
	// Ext is the normalized extension without the dot; may be empty.
	Ext string
	// DisplayName is optional; a timestamp is used when empty.
	DisplayName string
}

// Backend creates destinations in a public media location.
type Backend interface {
	Name() string
	// RequiresExtension reports whether names must carry the file extension,
	// i.e. the namespace does not store the MIME type separately.
	RequiresExtension() bool
	Create(ctx context.Context, target Target) (Destination, error)
}

// Destination is a newly created, exclusively owned asset being written.
type Destination interface {
	io.Writer
	// Close flushes and closes the destination. After a nil return the
	// asset is complete and visible to readers.
	Close() error
	// Abort discards a partially written destination. Best effort.
	Abort() error
	// Location is the identifier returned to the caller.
	Location() string
	// LocalPath is the on-disk path for the index notifier, or "" when the
	// asset is not stored locally.
	LocalPath() string
}

// ValidateDisplayName rejects names that contain path separators or are
// otherwise unusable as a single path element.
func ValidateDisplayName(name string) error {
	if name == "" {
		return nil
	}
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: blank", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case len(name) > 200:
		return fmt.Errorf("%w: longer than 200 bytes", ErrInvalidName)
	}
	return nil
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Root    string
	S3      S3Config
}

// New returns the backend named by cfg.Backend. store is required for the
// record backend only.
func New(ctx context.Context, cfg Config, store RecordStore, now Clock) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		return NewFileBackend(cfg.Root, now), nil
	case BackendRecord:
		if store == nil {
			return nil, fmt.Errorf("record backend requires a database")
		}
		return NewRecordBackend(store, cfg.Root, now), nil
	case BackendS3:
		return NewS3Backend(ctx, cfg.S3, now)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want %s, %s or %s)", cfg.Backend, BackendFile, BackendRecord, BackendS3)
	}
}
