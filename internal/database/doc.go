// Package database provides SQLite storage for the media publisher.
//
// It handles storage and retrieval of:
//   - Media records written by the record storage backend, which are
//     inserted pending and finalized once their bytes are on disk
//   - Index entries created when a published file is scanned
//   - Key/value metadata such as the last sweep time
//   - The bcrypt hash of the publish API token
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
