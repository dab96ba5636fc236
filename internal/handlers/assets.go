package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"media-publisher/internal/database"
	"media-publisher/internal/logging"
	"media-publisher/internal/media"
	"media-publisher/internal/mediatypes"
)

// ListAssets handles GET /api/assets?kind=&limit=&offset=&pending=.
func (h *Handlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := database.ListOptions{}

	switch kind := mediatypes.MediaKind(q.Get("kind")); kind {
	case "", mediatypes.KindImage, mediatypes.KindVideo:
		opts.Kind = kind
	default:
		writeJSONError(w, "kind must be image or video", http.StatusBadRequest)
		return
	}

	var err error
	if opts.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}
	if opts.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeJSONError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	opts.IncludePending, _ = strconv.ParseBool(q.Get("pending"))

	list, err := h.db.ListRecords(r.Context(), opts)
	if err != nil {
		logging.Error("ListAssets database error: %v", err)
		writeJSONError(w, "failed to list assets", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, list)
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

// assetResponse adds the content URI to a record.
type assetResponse struct {
	database.MediaRecord
	URI string `json:"uri"`
}

// GetAsset handles GET /api/assets/{id}.
func (h *Handlers) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.db.GetRecord(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "asset not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("GetAsset %d: %v", id, err)
		writeJSONError(w, "failed to load asset", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, assetResponse{MediaRecord: rec, URI: rec.URI()})
}

// GetAssetByPath handles GET /api/assets/by-path?path=, resolving a data
// file (as returned in filePath or indexed by refresh) to its record.
func (h *Handlers) GetAssetByPath(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" || !filepath.IsAbs(raw) {
		writeJSONError(w, "path must be an absolute file path", http.StatusBadRequest)
		return
	}

	rec, err := h.db.GetRecordByPath(r.Context(), filepath.Clean(raw))
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "asset not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("GetAssetByPath database error: %v", err)
		writeJSONError(w, "failed to load asset", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, assetResponse{MediaRecord: rec, URI: rec.URI()})
}

// GetThumbnail handles GET /api/thumbnail/{id}.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.thumbGen.IsEnabled() {
		writeJSONError(w, "thumbnails are disabled", http.StatusNotFound)
		return
	}

	data, err := h.thumbGen.Get(id)
	if err != nil {
		// Not cached yet: build it from the record's data file
		rec, recErr := h.db.GetRecord(r.Context(), id)
		if recErr != nil {
			writeJSONError(w, "asset not found", http.StatusNotFound)
			return
		}
		if _, genErr := h.thumbGen.Generate(rec.DataPath, rec.Kind, id); genErr != nil {
			status := http.StatusInternalServerError
			if errors.Is(genErr, media.ErrThumbnailUnsupported) {
				status = http.StatusNotFound
			} else {
				logging.Warn("Thumbnail for asset %d failed: %v", id, genErr)
			}
			writeJSONError(w, "thumbnail unavailable", status)
			return
		}
		if data, err = h.thumbGen.Get(id); err != nil {
			writeJSONError(w, "thumbnail unavailable", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		logging.Debug("failed to write thumbnail %d: %v", id, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid asset id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
