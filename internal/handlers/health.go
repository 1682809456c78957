package handlers

import (
	"net/http"
	"runtime"
	"time"

	"clip-splitter/internal/jobs"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusDraining = "draining"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Job slots
	ActiveJobs int         `json:"activeJobs"`
	MaxJobs    int         `json:"maxJobs"`
	Jobs       []jobs.Info `json:"jobs,omitempty"`

	// Storage
	StorageUsedBytes  int64  `json:"storageUsedBytes"`
	StorageQuotaBytes int64  `json:"storageQuotaBytes"`
	StorageError      string `json:"storageError,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports job slots and storage usage. Storage at or above the
// quota is reported as degraded since uploads will be refused.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:            statusHealthy,
		Ready:             !h.draining.Load(),
		Version:           startup.Version,
		Uptime:            time.Since(h.started).Round(time.Second).String(),
		ActiveJobs:        h.registry.Len(),
		MaxJobs:           h.registry.Ceiling(),
		Jobs:              h.registry.Snapshot(),
		StorageQuotaBytes: h.accountant.Quota(),
		GoVersion:         runtime.Version(),
		NumCPU:            runtime.NumCPU(),
		NumGoroutine:      runtime.NumGoroutine(),
	}

	used, err := h.accountant.Usage()
	switch {
	case err != nil:
		logging.Warn("Health check could not measure storage: %v", err)
		response.StorageError = err.Error()
		response.Status = statusDegraded
	case response.StorageQuotaBytes > 0 && used >= response.StorageQuotaBytes:
		response.Status = statusDegraded
	}
	response.StorageUsedBytes = used

	if !response.Ready {
		response.Status = statusDraining
		writeJSONResponse(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSONResponse(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 until shutdown begins
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.draining.Load() {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
