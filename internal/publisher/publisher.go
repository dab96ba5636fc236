package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"media-publisher/internal/filesystem"
	"media-publisher/internal/indexer"
	"media-publisher/internal/logging"
	"media-publisher/internal/media"
	"media-publisher/internal/mediatypes"
	"media-publisher/internal/metrics"
	"media-publisher/internal/storage"
)

// copyBufferSize is the fixed buffer of the file copy loop.
const copyBufferSize = 10240

// DefaultNotifyTimeout bounds how long a publish waits for the index.
const DefaultNotifyTimeout = 5 * time.Second

// DefaultQuality is the JPEG quality used when a request leaves it unset.
const DefaultQuality = 80

// Notification modes.
const (
	// NotifyScan waits for the index to confirm the asset.
	NotifyScan = "scan"
	// NotifyBroadcast queues the asset and returns immediately.
	NotifyBroadcast = "broadcast"
	// NotifyNone skips index notification.
	NotifyNone = "none"
)

// Operation labels for metrics.
const (
	opFile    = "file"
	opImage   = "image"
	opRefresh = "refresh"
)

// FileRequest publishes a copy of an existing file.
type FileRequest struct {
	SourcePath  string
	DisplayName string
}

// ImageRequest publishes an image payload encoded as JPEG.
type ImageRequest struct {
	PixelData []byte
	// Quality is the JPEG quality in [0,100]; 0 encodes as 1.
	Quality     int
	DisplayName string
}

// PublishRequest is the unified form of the three operations. Exactly one of
// Path and ImageBytes must be set. A Path with Copy publishes a copy; a Path
// without Copy only re-indexes the existing file.
type PublishRequest struct {
	Path       string `json:"path,omitempty"`
	ImageBytes []byte `json:"imageBytes,omitempty"`

	// Quality applies to ImageBytes; nil selects DefaultQuality.
	Quality *int   `json:"quality,omitempty"`
	Name    string `json:"name,omitempty"`
	Copy    bool   `json:"copy,omitempty"`
}

// DecodeGate admits pixel payload decodes. memory.Gate implements it.
type DecodeGate interface {
	Acquire(ctx context.Context) error
}

// Options configures a Publisher.
type Options struct {
	Backend storage.Backend
	// Notifier is optional; without it nothing is announced.
	Notifier indexer.Notifier
	// Encoder defaults to media.ImagingEncoder.
	Encoder media.Encoder
	// Lookup defaults to mediatypes.DefaultLookup.
	Lookup mediatypes.Lookup
	// Gate is optional; when set, decodes wait for it.
	Gate DecodeGate
	// NotifyMode is NotifyScan (default), NotifyBroadcast or NotifyNone.
	NotifyMode    string
	NotifyTimeout time.Duration
	// SourceRoots restricts PublishFile sources to these directories.
	// Empty allows any file the process can read.
	SourceRoots []string
}

// Publisher is the asset publisher. It holds no per-request state and is
// safe for concurrent use.
type Publisher struct {
	backend       storage.Backend
	notifier      indexer.Notifier
	encoder       media.Encoder
	lookup        mediatypes.Lookup
	gate          DecodeGate
	notifyMode    string
	notifyTimeout time.Duration
	sourceRoots   []string
	retry         filesystem.RetryConfig
}

// New creates a Publisher.
func New(opts Options) *Publisher {
	p := &Publisher{
		backend:       opts.Backend,
		notifier:      opts.Notifier,
		encoder:       opts.Encoder,
		lookup:        opts.Lookup,
		gate:          opts.Gate,
		notifyMode:    strings.ToLower(opts.NotifyMode),
		notifyTimeout: opts.NotifyTimeout,
		retry:         filesystem.DefaultRetryConfig(),
	}
	if p.encoder == nil {
		p.encoder = media.ImagingEncoder{}
	}
	if p.lookup == nil {
		p.lookup = mediatypes.DefaultLookup
	}
	if p.notifyMode == "" {
		p.notifyMode = NotifyScan
	}
	if p.notifier == nil {
		p.notifyMode = NotifyNone
	}
	if p.notifyTimeout <= 0 {
		p.notifyTimeout = DefaultNotifyTimeout
	}
	for _, root := range opts.SourceRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		p.sourceRoots = append(p.sourceRoots, canonicalPath(root))
	}
	return p
}

// canonicalPath returns the absolute path with symlinks resolved, or the
// cleaned absolute path when it cannot be resolved.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	// A missing file can still sit in a resolvable directory
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

// checkSource rejects sources outside the configured source roots.
func (p *Publisher) checkSource(path string) error {
	if len(p.sourceRoots) == 0 {
		return nil
	}
	resolved := canonicalPath(path)
	for _, root := range p.sourceRoots {
		rel, err := filepath.Rel(root, resolved)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside the allowed source directories", ErrInvalidArgument, path)
}

// Backend returns the configured storage backend.
func (p *Publisher) Backend() storage.Backend {
	return p.backend
}

// PublishFile copies req.SourcePath into the public media location.
func (p *Publisher) PublishFile(ctx context.Context, req FileRequest) (result Result) {
	start := time.Now()
	defer p.finish(opFile, start, &result)

	location, err := p.publishFile(ctx, req)
	if err != nil {
		logging.Warn("Publish of %s failed: %v", req.SourcePath, err)
		return Failed(err)
	}
	logging.Info("Published %s -> %s", req.SourcePath, location)
	return Succeeded(location)
}

func (p *Publisher) publishFile(ctx context.Context, req FileRequest) (string, error) {
	if strings.TrimSpace(req.SourcePath) == "" {
		return "", fmt.Errorf("%w: source path is required", ErrInvalidArgument)
	}
	if err := storage.ValidateDisplayName(req.DisplayName); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := p.checkSource(req.SourcePath); err != nil {
		return "", err
	}

	src, size, err := p.openSource(req.SourcePath)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logging.Warn("failed to close source %s: %v", req.SourcePath, err)
		}
	}()

	ext := mediatypes.ExtOf(req.SourcePath)
	kind, mime := mediatypes.Classify(p.lookup, ext)

	dest, err := p.create(ctx, storage.Target{
		Kind:        kind,
		MimeType:    mime,
		Ext:         ext,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return "", err
	}

	readStart := time.Now()
	buf := make([]byte, copyBufferSize)
	// Wrapping hides ReaderFrom/WriterTo so the fixed buffer is always used
	n, err := io.CopyBuffer(struct{ io.Writer }{dest}, struct{ io.Reader }{src}, buf)
	filesystem.ObserveOperation(req.SourcePath, "read", readStart, err)
	if err != nil {
		abort(dest)
		return "", fmt.Errorf("%w: copying %s after %d bytes: %v", ErrWriteFailed, req.SourcePath, n, err)
	}
	if n != size {
		logging.Debug("Source %s changed size during copy (%d -> %d bytes)", req.SourcePath, size, n)
	}

	if err := dest.Close(); err != nil {
		abort(dest)
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	p.notify(ctx, dest)
	return dest.Location(), nil
}

// openSource opens a regular file for reading and returns its size.
func (p *Publisher) openSource(path string) (*os.File, int64, error) {
	start := time.Now()
	f, err := filesystem.OpenWithRetry(path, p.retry)
	filesystem.ObserveOperation(path, "read", start, err)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", ErrSourceUnreadable, path)
	}
	return f, info.Size(), nil
}

// PublishImage decodes req.PixelData and encodes it as a JPEG into the public
// media location.
func (p *Publisher) PublishImage(ctx context.Context, req ImageRequest) (result Result) {
	start := time.Now()
	defer p.finish(opImage, start, &result)

	location, err := p.publishImage(ctx, req)
	if err != nil {
		logging.Warn("Publish of %d-byte image failed: %v", len(req.PixelData), err)
		return Failed(err)
	}
	logging.Info("Published %d-byte image -> %s", len(req.PixelData), location)
	return Succeeded(location)
}

func (p *Publisher) publishImage(ctx context.Context, req ImageRequest) (string, error) {
	if len(req.PixelData) == 0 {
		return "", fmt.Errorf("%w: image bytes are required", ErrInvalidArgument)
	}
	if req.Quality < 0 || req.Quality > 100 {
		return "", fmt.Errorf("%w: quality %d outside [0,100]", ErrInvalidArgument, req.Quality)
	}
	if err := storage.ValidateDisplayName(req.DisplayName); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if p.gate != nil {
		if err := p.gate.Acquire(ctx); err != nil {
			return "", fmt.Errorf("%w: waiting for memory: %v", ErrInternal, err)
		}
	}

	raster, err := p.encoder.Decode(req.PixelData)
	if err != nil {
		if errors.Is(err, media.ErrInvalidImage) {
			return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		return "", err
	}
	// Release the decoded pixels as soon as the encode is done
	defer raster.Close()

	dest, err := p.create(ctx, storage.Target{
		Kind:        mediatypes.KindImage,
		MimeType:    mediatypes.JPEGMimeType,
		Ext:         "jpg",
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return "", err
	}

	writeStart := time.Now()
	err = raster.EncodeJPEG(dest, req.Quality)
	filesystem.ObserveOperation(dest.LocalPath(), "write", writeStart, err)
	if err != nil {
		abort(dest)
		return "", fmt.Errorf("%w: encoding %dx%d image: %v", ErrWriteFailed, raster.Width(), raster.Height(), err)
	}

	if err := dest.Close(); err != nil {
		abort(dest)
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	p.notify(ctx, dest)
	return dest.Location(), nil
}

func (p *Publisher) create(ctx context.Context, target storage.Target) (storage.Destination, error) {
	if p.backend == nil {
		return nil, fmt.Errorf("%w: no storage backend configured", ErrDestinationCreate)
	}
	dest, err := p.backend.Create(ctx, target)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDestinationCreate, err)
	}
	return dest, nil
}

func abort(dest storage.Destination) {
	if err := dest.Abort(); err != nil {
		logging.Warn("failed to discard partial destination %s: %v", dest.Location(), err)
	}
}

// notify announces a closed destination to the index. Failures are logged
// and counted but never fail the publish: the asset is already stored.
func (p *Publisher) notify(ctx context.Context, dest storage.Destination) {
	path := dest.LocalPath()
	status := "skipped"
	defer func() {
		metrics.NotificationsTotal.WithLabelValues(p.notifyMode, status).Inc()
	}()

	if p.notifyMode == NotifyNone {
		return
	}
	if path == "" {
		logging.Debug("Destination %s has no local path, skipping index notification", dest.Location())
		return
	}

	if p.notifyMode == NotifyBroadcast {
		if err := p.notifier.Broadcast(path); err != nil {
			status = "error"
			logging.Warn("Index broadcast for %s failed: %v", path, err)
			return
		}
		status = "success"
		return
	}

	_, err := p.scan(ctx, path)
	switch {
	case err == nil:
		status = "success"
	case errors.Is(err, ErrNotifyTimeout):
		status = "timeout"
		logging.Warn("Index scan for %s timed out after %v", path, p.notifyTimeout)
	default:
		status = "error"
		logging.Warn("Index scan for %s failed: %v", path, err)
	}
}

// scan runs a bounded Scan and maps a deadline onto ErrNotifyTimeout.
func (p *Publisher) scan(ctx context.Context, path string) (indexer.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
	defer cancel()

	res, err := p.notifier.Scan(ctx, path)
	if errors.Is(err, context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s", ErrNotifyTimeout, path)
	}
	return res, err
}

// Refresh asks the index to (re)scan an existing file without copying it
// and returns the file's content URI.
func (p *Publisher) Refresh(ctx context.Context, path string) (uri string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
		p.observe(opRefresh, start, err)
	}()

	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidArgument)
	}
	if p.notifier == nil {
		return "", fmt.Errorf("%w: no media index configured", ErrInvalidArgument)
	}

	res, err := p.scan(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			err = fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		case errors.Is(err, indexer.ErrOutsideRoot):
			err = fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		case errors.Is(err, indexer.ErrNotRegularFile):
			err = fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
		}
		logging.Warn("Refresh of %s failed: %v", path, err)
		return "", err
	}

	logging.Info("Refreshed %s -> %s", path, res.URI)
	return res.URI, nil
}

// Publish dispatches a unified request to PublishImage, PublishFile or
// Refresh.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) Result {
	hasPath := strings.TrimSpace(req.Path) != ""
	hasImage := len(req.ImageBytes) > 0

	switch {
	case hasPath && hasImage:
		return Failed(fmt.Errorf("%w: path and imageBytes are mutually exclusive", ErrInvalidArgument))
	case !hasPath && !hasImage:
		return Failed(fmt.Errorf("%w: one of path or imageBytes is required", ErrInvalidArgument))
	case hasImage:
		quality := DefaultQuality
		if req.Quality != nil {
			quality = *req.Quality
		}
		return p.PublishImage(ctx, ImageRequest{PixelData: req.ImageBytes, Quality: quality, DisplayName: req.Name})
	case req.Copy:
		return p.PublishFile(ctx, FileRequest{SourcePath: req.Path, DisplayName: req.Name})
	}

	uri, err := p.Refresh(ctx, req.Path)
	if err != nil {
		return Failed(err)
	}
	return Succeeded(uri)
}

// finish recovers a panic into a failed result and records metrics.
func (p *Publisher) finish(op string, start time.Time, result *Result) {
	if r := recover(); r != nil {
		*result = Failed(recovered(r))
	}
	var err error
	if !result.Success {
		err = errors.New(result.ErrorMessage)
		if result.Code != "" {
			metrics.PublishErrors.WithLabelValues(result.Code).Inc()
		}
	}
	p.record(op, start, err)
}

func (p *Publisher) observe(op string, start time.Time, err error) {
	if err != nil {
		metrics.PublishErrors.WithLabelValues(Classify(err)).Inc()
	}
	p.record(op, start, err)
}

func (p *Publisher) record(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	backend := "none"
	if p.backend != nil {
		backend = p.backend.Name()
	}
	metrics.PublishOperationsTotal.WithLabelValues(op, backend, status).Inc()
	metrics.PublishDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func recovered(r any) error {
	logging.Error("panic during publish: %v\n%s", r, debug.Stack())
	return fmt.Errorf("%w: %v", ErrInternal, r)
}
