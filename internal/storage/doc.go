// Package storage provides the pluggable backends an asset is published to
// and the destination naming routine they share.
//
// A Backend is selected once at start-up (STORAGE_BACKEND):
//   - file: direct-path write under PUBLIC_DIR/{pictures,videos}
//   - record: structured SQLite record with a generated id and a data file
//   - s3: object upload to a bucket
//
// Names are never overwritten. A taken name is disambiguated with a numeric
// suffix (name-1, name-2, ...).
package storage
