package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/filesystem"
	"clip-splitter/internal/jobs"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/metrics"
	"clip-splitter/internal/processor"
	"clip-splitter/internal/segment"
	"clip-splitter/internal/startup"
	"clip-splitter/internal/transcoder"
)

// Prober reads the duration and stream layout of an uploaded file.
type Prober interface {
	Probe(ctx context.Context, path string) (*transcoder.VideoInfo, error)
}

type Handlers struct {
	registry   *jobs.Registry
	store      *artifacts.Store
	accountant *artifacts.Accountant
	prober     Prober
	processor  *processor.Processor
	retry      filesystem.RetryConfig

	maxUploadSize int64
	segmentLength float64

	started  time.Time
	draining atomic.Bool
}

func New(registry *jobs.Registry, store *artifacts.Store, accountant *artifacts.Accountant, prober Prober, proc *processor.Processor, config *startup.Config) *Handlers {
	length := config.SegmentLength
	if length <= 0 {
		length = segment.DefaultLength
	}
	return &Handlers{
		registry:      registry,
		store:         store,
		accountant:    accountant,
		prober:        prober,
		processor:     proc,
		retry:         filesystem.DefaultRetryConfig(),
		maxUploadSize: config.MaxUploadSize,
		segmentLength: length,
		started:       time.Now(),
	}
}

// SetDraining marks the server as shutting down; readiness fails from then on.
func (h *Handlers) SetDraining() {
	h.draining.Store(true)
}

// GetStats implements metrics.StatsProvider.
func (h *Handlers) GetStats() metrics.Stats {
	stats := metrics.Stats{ActiveJobs: h.registry.Len()}

	used, err := h.accountant.Usage()
	if err != nil {
		logging.Warn("Failed to measure storage usage: %v", err)
	}
	stats.StorageUsedBytes = used

	if uploads, err := h.store.ListUploads(); err == nil {
		stats.Uploads = len(uploads)
	}
	if projects, err := h.store.ListProjects(); err == nil {
		stats.Projects = len(projects)
	}
	return stats
}
