package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"media-publisher/internal/logging"
	"media-publisher/internal/publisher"
)

// jsonOverhead is added to the upload limit for JSON bodies: base64
// inflates the payload by a third.
const jsonOverhead = 4.0 / 3.0

// RefreshRequest asks the index to rescan an existing file.
type RefreshRequest struct {
	Path string `json:"path"`
}

// SaveFileRequest publishes a copy of a file.
type SaveFileRequest struct {
	File string `json:"file"`
	Name string `json:"name,omitempty"`
}

// SaveImageRequest publishes an image payload as JPEG. ImageBytes is
// base64 in JSON.
type SaveImageRequest struct {
	ImageBytes []byte `json:"imageBytes"`
	Quality    *int   `json:"quality,omitempty"`
	Name       string `json:"name,omitempty"`
}

// RefreshGallery handles POST /api/refresh-gallery.
func (h *Handlers) RefreshGallery(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, 64<<10, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	uri, err := h.publisher.Refresh(r.Context(), req.Path)
	if err != nil {
		writeJSONError(w, err.Error(), refreshStatus(err))
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"uri": uri})
}

// refreshStatus maps a refresh failure to an HTTP status.
func refreshStatus(err error) int {
	switch publisher.Classify(err) {
	case publisher.CodeInvalidArgument:
		return http.StatusBadRequest
	case publisher.CodeSourceNotFound:
		return http.StatusNotFound
	case publisher.CodeSourceUnreadable:
		return http.StatusUnprocessableEntity
	case publisher.CodeNotifyTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// SaveFile handles POST /api/save-file.
func (h *Handlers) SaveFile(w http.ResponseWriter, r *http.Request) {
	var req SaveFileRequest
	if err := decodeJSON(w, r, 64<<10, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := h.publisher.PublishFile(r.Context(), publisher.FileRequest{
		SourcePath:  req.File,
		DisplayName: req.Name,
	})
	writeResult(w, result)
}

// SaveImage handles POST /api/save-image with either a JSON body or a
// multipart form carrying an "image" file part.
func (h *Handlers) SaveImage(w http.ResponseWriter, r *http.Request) {
	var (
		req ImageUpload
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = h.readMultipartImage(w, r)
	} else {
		req, err = h.readJSONImage(w, r)
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := h.publisher.PublishImage(r.Context(), publisher.ImageRequest{
		PixelData:   req.Data,
		Quality:     req.Quality,
		DisplayName: req.Name,
	})
	writeResult(w, result)
}

// ImageUpload is a decoded save-image request.
type ImageUpload struct {
	Data    []byte
	Quality int
	Name    string
}

func (h *Handlers) readJSONImage(w http.ResponseWriter, r *http.Request) (ImageUpload, error) {
	var req SaveImageRequest
	if err := decodeJSON(w, r, int64(float64(h.maxUploadBytes)*jsonOverhead)+(64<<10), &req); err != nil {
		return ImageUpload{}, err
	}
	quality := publisher.DefaultQuality
	if req.Quality != nil {
		quality = *req.Quality
	}
	return ImageUpload{Data: req.ImageBytes, Quality: quality, Name: req.Name}, nil
}

func (h *Handlers) readMultipartImage(w http.ResponseWriter, r *http.Request) (ImageUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(64<<10))
	// Parts beyond 8MB spill to temporary files
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return ImageUpload{}, fmt.Errorf("invalid multipart body: %w", err)
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Warn("failed to remove multipart temp files: %v", err)
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		return ImageUpload{}, errors.New(`multipart body needs an "image" file part`)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ImageUpload{}, fmt.Errorf("failed to read image part: %w", err)
	}

	quality := publisher.DefaultQuality
	if raw := strings.TrimSpace(r.FormValue("quality")); raw != "" {
		quality, err = strconv.Atoi(raw)
		if err != nil {
			return ImageUpload{}, fmt.Errorf("quality %q is not an integer", raw)
		}
	}

	logging.Debug("Received multipart image %q (%d bytes)", header.Filename, len(data))
	return ImageUpload{Data: data, Quality: quality, Name: r.FormValue("name")}, nil
}

// Publish handles POST /api/publish, the unified request.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	var req publisher.PublishRequest
	if err := decodeJSON(w, r, int64(float64(h.maxUploadBytes)*jsonOverhead)+(64<<10), &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResult(w, h.publisher.Publish(r.Context(), req))
}

// writeResult sends a publish result. Failures are part of the result
// contract, so the status is 200 either way.
func writeResult(w http.ResponseWriter, result publisher.Result) {
	w.Header().Set("Content-Type", "application/json")
	if result.Code != "" {
		w.Header().Set("X-Publish-Error", result.Code)
	}
	w.WriteHeader(http.StatusOK)
	data, err := json.Marshal(result)
	if err != nil {
		logging.Error("failed to encode publish result: %v", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		logging.Debug("failed to write publish result: %v", err)
	}
}
