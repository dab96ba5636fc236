package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"media-publisher/internal/mediatypes"
)

func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

// meanAbsError compares two images of equal size channel by channel.
func meanAbsError(a, b image.Image) float64 {
	bounds := a.Bounds()
	var sum float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, _ := a.At(x, y).RGBA()
			r2, g2, b2, _ := b.At(x, y).RGBA()
			sum += math.Abs(float64(r1)-float64(r2)) + math.Abs(float64(g1)-float64(g2)) + math.Abs(float64(b1)-float64(b2))
			n += 3
		}
	}
	return sum / float64(n) / 257
}

func TestDecodeConfig(t *testing.T) {
	valid := pngBytes(t, createTestImage(40, 30))

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
		wantW   int
		wantH   int
	}{
		{"valid png", valid, false, 40, 30},
		{"empty", nil, true, 0, 0},
		{"garbage", []byte("definitely not an image"), true, 0, 0},
		{"truncated png header", valid[:10], true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dims, format, err := DecodeConfig(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImage) {
					t.Fatalf("expected ErrInvalidImage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dims.Width != tt.wantW || dims.Height != tt.wantH {
				t.Errorf("dims = %dx%d, want %dx%d", dims.Width, dims.Height, tt.wantW, tt.wantH)
			}
			if format != "png" {
				t.Errorf("format = %q, want png", format)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		header []byte
		want   string
	}{
		{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{[]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png"},
		{[]byte("GIF89a"), "gif"},
		{[]byte("RIFF\x00\x00\x00\x00WEBP"), "webp"},
		{[]byte("BM"), "bmp"},
		{[]byte{0x49, 0x49, 0x2A, 0x00}, "tiff"},
		{[]byte("\x00\x00\x00\x18ftypheic"), "heif"},
		{[]byte("\x00\x00\x00\x18ftypisom"), "mp4-container"},
		{[]byte("hello"), "unknown"},
		{nil, "unknown"},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.header); got != tt.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestClampQuality(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 1}, {0, 1}, {1, 1}, {50, 50}, {100, 100}, {150, 100},
	}
	for _, tt := range tests {
		if got := ClampQuality(tt.in); got != tt.want {
			t.Errorf("ClampQuality(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewEncoder(t *testing.T) {
	for _, name := range []string{"", "imaging", "IMAGING"} {
		enc, err := NewEncoder(name)
		if err != nil {
			t.Fatalf("NewEncoder(%q) failed: %v", name, err)
		}
		if enc.Name() != EncoderImaging {
			t.Errorf("NewEncoder(%q).Name() = %q", name, enc.Name())
		}
	}

	if _, err := NewEncoder("gif"); err == nil {
		t.Error("expected error for unknown encoder")
	}

	if !IsVipsAvailable() {
		enc, err := NewEncoder("vips")
		if err != nil || enc.Name() != EncoderImaging {
			t.Errorf("vips without libvips should fall back to imaging, got %v, %v", enc, err)
		}
	}
}

func TestImagingEncoderRoundTrip(t *testing.T) {
	src := createTestImage(64, 48)
	payload := pngBytes(t, src)

	raster, err := ImagingEncoder{}.Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer raster.Close()

	if raster.Width() != 64 || raster.Height() != 48 {
		t.Fatalf("raster = %dx%d, want 64x48", raster.Width(), raster.Height())
	}

	encodeAt := func(q int) image.Image {
		var buf bytes.Buffer
		if err := raster.EncodeJPEG(&buf, q); err != nil {
			t.Fatalf("EncodeJPEG(%d) failed: %v", q, err)
		}
		img, err := jpeg.Decode(&buf)
		if err != nil {
			t.Fatalf("output at quality %d does not decode: %v", q, err)
		}
		return img
	}

	high := meanAbsError(src, encodeAt(100))
	low := meanAbsError(src, encodeAt(1))
	if high >= low {
		t.Errorf("quality 100 error %.2f should be below quality 1 error %.2f", high, low)
	}

	// Quality 0 is accepted and clamped
	encodeAt(0)
}

func TestImagingEncoderRejectsMalformed(t *testing.T) {
	_, err := ImagingEncoder{}.Decode([]byte{0xFF, 0xD8, 0xFF, 0x00, 0x01})
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestRasterClose(t *testing.T) {
	raster, err := ImagingEncoder{}.Decode(pngBytes(t, createTestImage(8, 8)))
	if err != nil {
		t.Fatal(err)
	}
	raster.Close()
	if err := raster.EncodeJPEG(&bytes.Buffer{}, 90); err == nil {
		t.Error("expected error encoding a released raster")
	}
	if raster.Width() != 8 {
		t.Errorf("Width after Close = %d, want 8", raster.Width())
	}
}

func TestThumbnailGenerator(t *testing.T) {
	cacheDir := t.TempDir()
	srcDir := t.TempDir()

	src := filepath.Join(srcDir, "photo.jpg")
	f, err := os.Create(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, createTestImage(800, 400), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	gen := NewThumbnailGenerator(cacheDir, true)
	if !gen.IsEnabled() {
		t.Fatal("generator should be enabled")
	}

	path, err := gen.Generate(src, mediatypes.KindImage, 7)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if path != filepath.Join(cacheDir, "thumbnails", "7.jpg") {
		t.Errorf("unexpected thumbnail path %s", path)
	}

	data, err := gen.Get(7)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail is not a JPEG: %v", err)
	}
	if cfg.Width != ThumbnailSize || cfg.Height != ThumbnailSize/2 {
		t.Errorf("thumbnail = %dx%d, want %dx%d", cfg.Width, cfg.Height, ThumbnailSize, ThumbnailSize/2)
	}

	gen.Remove(7)
	if _, err := gen.Get(7); !os.IsNotExist(err) {
		t.Errorf("expected not-exist after Remove, got %v", err)
	}
}

func TestThumbnailGeneratorUnsupported(t *testing.T) {
	gen := NewThumbnailGenerator(t.TempDir(), true)

	src := filepath.Join(t.TempDir(), "notes.jpg")
	if err := os.WriteFile(src, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := gen.Generate(src, mediatypes.KindImage, 1); !errors.Is(err, ErrThumbnailUnsupported) {
		t.Errorf("expected ErrThumbnailUnsupported, got %v", err)
	}
}

func TestThumbnailGeneratorDisabled(t *testing.T) {
	gen := NewThumbnailGenerator(t.TempDir(), false)
	if gen.IsEnabled() {
		t.Fatal("generator should be disabled")
	}
	if _, err := gen.Generate("/nope.jpg", mediatypes.KindImage, 1); !errors.Is(err, ErrThumbnailsDisabled) {
		t.Errorf("expected ErrThumbnailsDisabled, got %v", err)
	}
	if _, err := gen.Get(1); !errors.Is(err, ErrThumbnailsDisabled) {
		t.Errorf("expected ErrThumbnailsDisabled, got %v", err)
	}
}
