package database

import (
	"fmt"
	"time"

	"media-publisher/internal/mediatypes"
)

// Record sources
const (
	// SourceStore marks rows inserted by the record storage backend.
	SourceStore = "store"
	// SourceScan marks rows created by an index scan of a plain file.
	SourceScan = "scan"
)

// MediaRecord is a row of the media table.
type MediaRecord struct {
	ID           int64                `json:"id"`
	DisplayName  string               `json:"displayName"`
	RelativePath string               `json:"relativePath"`
	MimeType     string               `json:"mimeType,omitempty"`
	Kind         mediatypes.MediaKind `json:"kind"`
	Source       string               `json:"source"`
	DataPath     string               `json:"dataPath"`
	Size         int64                `json:"size"`
	Width        int                  `json:"width,omitempty"`
	Height       int                  `json:"height,omitempty"`
	ModTime      time.Time            `json:"modTime"`
	Pending      bool                 `json:"pending"`
	DateAdded    time.Time            `json:"dateAdded"`
	DateIndexed  time.Time            `json:"dateIndexed,omitempty"`
}

// URI returns the content URI of the record,
// e.g. content://media/external/images/media/42.
func (r MediaRecord) URI() string {
	return ContentURI(r.Kind, r.ID)
}

// ContentURI builds the content URI for a record id in the kind's collection.
func ContentURI(kind mediatypes.MediaKind, id int64) string {
	return fmt.Sprintf("content://media/external/%s/media/%d", kind.Collection(), id)
}

// ListOptions filters and paginates ListRecords.
type ListOptions struct {
	Kind           mediatypes.MediaKind
	IncludePending bool
	Limit          int
	Offset         int
}

// RecordList is a page of records.
type RecordList struct {
	Items  []MediaRecord `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
