package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"media-publisher/internal/logging"
	"media-publisher/internal/mediatypes"
	"media-publisher/internal/metrics"
)

const (
	// ThumbnailSize is the bounding box edge of generated thumbnails.
	ThumbnailSize    = 200
	thumbnailQuality = 80
)

// ErrThumbnailsDisabled is returned when the cache directory is unavailable.
var ErrThumbnailsDisabled = errors.New("thumbnails disabled")

// ErrThumbnailUnsupported is returned when no decoder can render the asset.
var ErrThumbnailUnsupported = errors.New("thumbnail not supported for this file")

// ThumbnailGenerator renders JPEG thumbnails into CACHE_DIR/thumbnails keyed
// by media record id.
type ThumbnailGenerator struct {
	dir     string
	enabled bool
	mu      sync.Mutex
}

// NewThumbnailGenerator creates a generator writing under cacheDir/thumbnails.
func NewThumbnailGenerator(cacheDir string, enabled bool) *ThumbnailGenerator {
	dir := filepath.Join(cacheDir, "thumbnails")
	if enabled {
		logging.Debug("ThumbnailGenerator: enabled, cache dir: %s", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Warn("ThumbnailGenerator: failed to create cache dir, disabling: %v", err)
			enabled = false
		}
	} else {
		logging.Debug("ThumbnailGenerator: disabled")
	}
	return &ThumbnailGenerator{
		dir:     dir,
		enabled: enabled,
	}
}

// IsEnabled reports whether thumbnails are generated.
func (t *ThumbnailGenerator) IsEnabled() bool {
	return t != nil && t.enabled
}

// Path returns the cache path for a record id.
func (t *ThumbnailGenerator) Path(id int64) string {
	return filepath.Join(t.dir, fmt.Sprintf("%d.jpg", id))
}

// Get returns the cached thumbnail for id.
func (t *ThumbnailGenerator) Get(id int64) ([]byte, error) {
	if !t.IsEnabled() {
		return nil, ErrThumbnailsDisabled
	}
	return os.ReadFile(t.Path(id))
}

// Remove deletes the cached thumbnail for id, if any.
func (t *ThumbnailGenerator) Remove(id int64) {
	if !t.IsEnabled() {
		return
	}
	if err := os.Remove(t.Path(id)); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove thumbnail %s: %v", t.Path(id), err)
	}
}

// Generate renders the thumbnail of srcPath for record id and returns its path.
func (t *ThumbnailGenerator) Generate(srcPath string, kind mediatypes.MediaKind, id int64) (string, error) {
	if !t.IsEnabled() {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("skipped").Inc()
		return "", ErrThumbnailsDisabled
	}

	start := time.Now()
	status := "error"
	defer func() {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(status).Inc()
		metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		data []byte
		err  error
	)
	switch kind {
	case mediatypes.KindVideo:
		data, err = t.renderVideo(srcPath)
	default:
		data, err = t.renderImage(srcPath)
	}
	if errors.Is(err, ErrThumbnailUnsupported) {
		status = "skipped"
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("thumbnail generation failed: %w", err)
	}

	dest := t.Path(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move thumbnail into place: %w", err)
	}

	status = "success"
	logging.Debug("Thumbnail cached: %s", dest)
	return dest, nil
}

func (t *ThumbnailGenerator) renderImage(srcPath string) ([]byte, error) {
	if IsVipsAvailable() {
		data, err := thumbnailWithVips(srcPath, ThumbnailSize)
		if err == nil {
			return data, nil
		}
		logging.Debug("vips thumbnail failed for %s: %v, falling back to imaging", srcPath, err)
	}

	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		logging.Debug("imaging.Open failed for %s: %v", srcPath, err)
		return nil, ErrThumbnailUnsupported
	}
	return encodeThumbnail(img)
}

// renderVideo extracts a frame with ffmpeg when it is installed.
func (t *ThumbnailGenerator) renderVideo(srcPath string) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		logging.Debug("ffmpeg not found, skipping video thumbnail for %s", srcPath)
		return nil, ErrThumbnailUnsupported
	}

	frame := func(args ...string) ([]byte, error) {
		var stdout, stderr bytes.Buffer
		cmd := exec.Command("ffmpeg", args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
		}
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("ffmpeg produced no output for %s", srcPath)
		}
		return stdout.Bytes(), nil
	}

	out, err := frame("-i", srcPath, "-ss", "00:00:01", "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	if err != nil {
		// Clips shorter than a second have no frame at 00:00:01
		logging.Debug("ffmpeg first attempt failed for %s: %v", srcPath, err)
		out, err = frame("-i", srcPath, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")
		if err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return encodeThumbnail(img)
}

func encodeThumbnail(img image.Image) ([]byte, error) {
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
