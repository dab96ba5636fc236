package handlers

import (
	"media-publisher/internal/database"
	"media-publisher/internal/indexer"
	"media-publisher/internal/media"
	"media-publisher/internal/publisher"
	"media-publisher/internal/startup"
)

// Handlers serves the publisher's HTTP API.
type Handlers struct {
	db             *database.Database
	indexer        *indexer.Indexer
	publisher      *publisher.Publisher
	thumbGen       *media.ThumbnailGenerator
	maxUploadBytes int64
}

// New creates the handlers. thumbs may be nil when thumbnails are disabled.
func New(db *database.Database, idx *indexer.Indexer, pub *publisher.Publisher, thumbs *media.ThumbnailGenerator, config *startup.Config) *Handlers {
	maxUpload := int64(startup.DefaultMaxUploadMB) << 20
	if config != nil && config.MaxUploadBytes > 0 {
		maxUpload = config.MaxUploadBytes
	}
	return &Handlers{
		db:             db,
		indexer:        idx,
		publisher:      pub,
		thumbGen:       thumbs,
		maxUploadBytes: maxUpload,
	}
}
