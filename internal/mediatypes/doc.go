// Package mediatypes provides the extension to MIME table and the MediaKind
// classification shared across the media publisher.
//
// This package exists as a dependency-free foundation that can be imported by
// other packages without creating import cycles.
//
// # Classification
//
// Classify resolves an extension through an injected Lookup and derives the
// MediaKind from the MIME type:
//
//	kind, mime := mediatypes.Classify(mediatypes.DefaultLookup, "mp4")
//	// kind == mediatypes.KindVideo, mime == "video/mp4"
//
// Unknown extensions classify as KindImage with an empty MIME type, matching
// the behaviour of the gallery store where the picture collection is the
// default.
//
// # Directories
//
// Each kind maps to a public subdirectory:
//
//	mediatypes.KindImage.Directory() // "pictures"
//	mediatypes.KindVideo.Directory() // "videos"
package mediatypes
