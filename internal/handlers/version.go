package handlers

import (
	"net/http"

	"clip-splitter/internal/startup"
)

// Limits are the upload constraints a client needs before choosing a file.
type Limits struct {
	MaxUploadBytes       int64   `json:"maxUploadBytes"`
	SegmentLengthSeconds float64 `json:"segmentLengthSeconds"`
	MaxConcurrentJobs    int     `json:"maxConcurrentJobs"`
}

// VersionResponse is build information plus the server's upload limits.
type VersionResponse struct {
	startup.BuildInfo
	Limits Limits `json:"limits"`
}

// GetVersion returns build information and upload limits.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	resp := VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		Limits: Limits{
			MaxUploadBytes:       h.maxUploadSize,
			SegmentLengthSeconds: h.segmentLength,
		},
	}
	if h.registry != nil {
		resp.Limits.MaxConcurrentJobs = h.registry.Ceiling()
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, http.StatusOK, resp)
}
