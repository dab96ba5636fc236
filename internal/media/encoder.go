package media

import (
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"media-publisher/internal/logging"
	"media-publisher/internal/metrics"
)

// Encoder names accepted by NewEncoder.
const (
	EncoderImaging = "imaging"
	EncoderVips    = "vips"
)

// Encoder decodes image payloads into rasters that can be written as JPEG.
type Encoder interface {
	Name() string
	Decode(data []byte) (Raster, error)
}

// Raster is a decoded image held in memory until Close.
type Raster interface {
	Width() int
	Height() int
	// EncodeJPEG writes the raster to w. quality is clamped to 1..100.
	EncodeJPEG(w io.Writer, quality int) error
	Close()
}

// NewEncoder returns the encoder for name. Asking for vips when libvips is
// not initialized falls back to imaging with a warning.
func NewEncoder(name string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncoderImaging:
		return ImagingEncoder{}, nil
	case EncoderVips:
		if !IsVipsAvailable() {
			logging.Warn("ENCODER=vips requested but libvips is not initialized, using imaging")
			return ImagingEncoder{}, nil
		}
		return VipsEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown encoder %q (want %s or %s)", name, EncoderImaging, EncoderVips)
	}
}

// ClampQuality maps a [0,100] quality onto the 1..100 range JPEG encoders accept.
func ClampQuality(quality int) int {
	if quality < 1 {
		return 1
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// ImagingEncoder decodes with the standard codecs and encodes with imaging.
type ImagingEncoder struct{}

// Name implements Encoder.
func (ImagingEncoder) Name() string { return EncoderImaging }

// Decode implements Encoder.
func (ImagingEncoder) Decode(data []byte) (Raster, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &imagingRaster{img: img, width: b.Dx(), height: b.Dy()}, nil
}

type imagingRaster struct {
	img           image.Image
	width, height int
}

func (r *imagingRaster) Width() int  { return r.width }
func (r *imagingRaster) Height() int { return r.height }

func (r *imagingRaster) EncodeJPEG(w io.Writer, quality int) error {
	if r.img == nil {
		return fmt.Errorf("raster already released")
	}
	start := time.Now()
	defer func() {
		metrics.ImageEncodeDuration.WithLabelValues(EncoderImaging).Observe(time.Since(start).Seconds())
	}()
	return imaging.Encode(w, r.img, imaging.JPEG, imaging.JPEGQuality(ClampQuality(quality)))
}

func (r *imagingRaster) Close() {
	r.img = nil
}
