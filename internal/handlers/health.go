package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-publisher/internal/indexer"
	"media-publisher/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusStarting  = "starting"
	statusUnhealthy = "unhealthy"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string               `json:"status"`
	Ready    bool                 `json:"ready"`
	Version  string               `json:"version"`
	Backend  string               `json:"backend"`
	Database string               `json:"database"`
	Indexer  indexer.HealthStatus `json:"indexer"`

	// Stats summary
	TotalImages    int   `json:"totalImages"`
	TotalVideos    int   `json:"totalVideos"`
	PendingRecords int   `json:"pendingRecords"`
	TotalBytes     int64 `json:"totalBytes"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	idxStatus := h.indexer.GetHealthStatus()
	stats := h.db.GetStats()

	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          idxStatus.Ready,
		Version:        startup.Version,
		Backend:        h.publisher.Backend().Name(),
		Database:       "ok",
		Indexer:        idxStatus,
		TotalImages:    stats.TotalImages,
		TotalVideos:    stats.TotalVideos,
		PendingRecords: stats.PendingRecords,
		TotalBytes:     stats.TotalBytes,
		GoVersion:      runtime.Version(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		response.Database = err.Error()
		response.Status = statusUnhealthy
		response.Ready = false
	} else if !idxStatus.Ready {
		response.Status = statusStarting
	}

	code := http.StatusOK
	if !response.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.IsReady() {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
