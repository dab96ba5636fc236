package mediatypes

import (
	"path/filepath"
	"strings"
)

// MediaKind classifies an asset as image or video. It drives the
// destination directory and the index collection an asset lands in.
type MediaKind string

const (
	// KindImage is the kind for still images. Unknown extensions default to it.
	KindImage MediaKind = "image"
	// KindVideo is the kind for video files.
	KindVideo MediaKind = "video"
)

// JPEGMimeType is the MIME type of encoded pixel payloads.
const JPEGMimeType = "image/jpeg"

// Directory returns the public subdirectory for the kind.
func (k MediaKind) Directory() string {
	if k == KindVideo {
		return "videos"
	}
	return "pictures"
}

// Collection returns the content URI collection segment for the kind.
func (k MediaKind) Collection() string {
	if k == KindVideo {
		return "video"
	}
	return "images"
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".dng":  "image/x-adobe-dng",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
}

// preferredExtensions picks one extension for MIME types that have several.
var preferredExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/tiff": ".tiff",
	"video/mpeg": ".mpg",
}

// Lookup resolves an extension (with or without the leading dot, any case)
// to a MIME type. It is injected into the publisher so the table can be
// replaced in tests or extended by callers.
type Lookup func(ext string) (string, bool)

// DefaultLookup resolves extensions against MimeTypes.
func DefaultLookup(ext string) (string, bool) {
	ext = NormalizeExt(ext)
	if ext == "" {
		return "", false
	}
	mime, ok := MimeTypes["."+ext]
	return mime, ok
}

// NormalizeExt lowercases an extension and strips the leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// ExtOf returns the normalized extension of a path ("" if none).
func ExtOf(path string) string {
	return NormalizeExt(filepath.Ext(path))
}

// KindForMime returns KindVideo for video/* MIME types and KindImage otherwise.
func KindForMime(mime string) MediaKind {
	if strings.HasPrefix(mime, "video/") {
		return KindVideo
	}
	return KindImage
}

// Classify derives the MediaKind and MIME type of an extension using lookup.
// An unknown extension yields KindImage and an empty MIME type.
func Classify(lookup Lookup, ext string) (MediaKind, string) {
	if lookup == nil {
		lookup = DefaultLookup
	}
	mime, ok := lookup(ext)
	if !ok || mime == "" {
		return KindImage, ""
	}
	return KindForMime(mime), mime
}

// ExtensionForMime returns the file extension (with dot) for a MIME type,
// or "" when the type is unknown.
func ExtensionForMime(mime string) string {
	if mime == "" {
		return ""
	}
	if ext, ok := preferredExtensions[mime]; ok {
		return ext
	}
	for ext, m := range MimeTypes {
		if m == mime {
			return ext
		}
	}
	return ""
}
