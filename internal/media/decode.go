package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support
)

// MaxImagePixels is the largest payload (width * height) we'll decode.
// A 100MP image uses ~400MB in RGBA.
const MaxImagePixels = 100_000_000

// ErrInvalidImage is returned when a payload cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image payload")

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// DecodeConfig reads the dimensions and format of a payload without decoding
// its pixels. It rejects payloads above MaxImagePixels.
func DecodeConfig(data []byte) (ImageDimensions, string, error) {
	if len(data) == 0 {
		return ImageDimensions{}, "", fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageDimensions{}, "", fmt.Errorf("%w: %s payload: %v", ErrInvalidImage, DetectFormat(data), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageDimensions{}, "", fmt.Errorf("%w: zero-sized %s image", ErrInvalidImage, format)
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return ImageDimensions{}, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxImagePixels)
	}
	return ImageDimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// DecodeImage decodes a payload into a raster with EXIF orientation applied.
func DecodeImage(data []byte) (image.Image, error) {
	if _, _, err := DecodeConfig(data); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// DetectFormat sniffs the container format from the leading magic bytes.
// It is used for diagnostics only; decoding relies on the registered codecs.
func DetectFormat(header []byte) string {
	if len(header) > 32 {
		header = header[:32]
	}

	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return "png"

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return "gif"

	case len(header) >= 12 && header[0] == 0x52 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x46 &&
		header[8] == 0x57 && header[9] == 0x45 && header[10] == 0x42 && header[11] == 0x50:
		return "webp"

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return "bmp"

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return "tiff"

	case len(header) >= 12 && header[4] == 0x66 && header[5] == 0x74 && header[6] == 0x79 && header[7] == 0x70:
		brand := string(header[8:12])
		if brand == "heic" || brand == "heix" || brand == "hevc" || brand == "hevx" || brand == "mif1" || brand == "msf1" {
			return "heif"
		}
		if brand == "avif" || brand == "avis" {
			return "avif"
		}
		return "mp4-container"
	}

	return "unknown"
}
