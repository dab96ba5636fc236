package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router registers every route of the publisher API.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/refresh-gallery", h.RefreshGallery).Methods(http.MethodPost).Name("refresh-gallery")
	api.HandleFunc("/save-file", h.SaveFile).Methods(http.MethodPost).Name("save-file")
	api.HandleFunc("/save-image", h.SaveImage).Methods(http.MethodPost).Name("save-image")
	api.HandleFunc("/publish", h.Publish).Methods(http.MethodPost).Name("publish")
	api.HandleFunc("/assets", h.ListAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets/by-path", h.GetAssetByPath).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id:[0-9]+}", h.GetAsset).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail/{id:[0-9]+}", h.GetThumbnail).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}
