// Package media decodes image payloads and encodes them as JPEG, and renders
// small thumbnails for indexed assets.
//
// Two encoders are available:
//   - imaging: pure Go decode with EXIF auto-orientation and JPEG encode
//   - vips: libvips decode and export, selected with ENCODER=vips
//
// Both return a Raster that the caller encodes straight into a destination
// stream and then closes to release the decoded pixels.
package media
