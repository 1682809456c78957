package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_splitter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.05, 0.5, 1, 5, 30, 60, 300, 900, 1800},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Job metrics
var (
	JobsAdmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_splitter_jobs_admitted_total",
			Help: "Total number of processing jobs admitted",
		},
	)

	JobsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_jobs_rejected_total",
			Help: "Total number of processing requests rejected before transcoding",
		},
		[]string{"reason"}, // "busy", "quota"
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_jobs_finished_total",
			Help: "Total number of processing jobs by terminal state",
		},
		[]string{"state"}, // "completed", "failed", "cancelled"
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_jobs_active",
			Help: "Number of jobs currently held in the job registry",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip_splitter_job_duration_seconds",
			Help:    "Wall time of a processing job from admission to release",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		},
	)
)

// Segment metrics
var (
	SegmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_segments_total",
			Help: "Total number of segment transcodes by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "skipped"
	)

	SegmentTranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip_splitter_segment_transcode_duration_seconds",
			Help:    "Duration of one ffmpeg segment invocation in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SegmentsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_segments_in_progress",
			Help: "Number of ffmpeg segment processes currently running",
		},
	)
)

// Storage metrics
var (
	StorageUsedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_storage_used_bytes",
			Help: "Bytes used by uploads and project directories at last measurement",
		},
	)

	StorageQuotaBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_storage_quota_bytes",
			Help: "Configured storage quota in bytes",
		},
	)

	StoredArtifacts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_splitter_stored_artifacts",
			Help: "Uploads and project directories on disk at last measurement",
		},
		[]string{"kind"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_splitter_upload_bytes_total",
			Help: "Total number of uploaded bytes received",
		},
	)
)

// Retention sweeper metrics
var (
	SweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_splitter_sweep_runs_total",
			Help: "Total number of retention sweeps",
		},
	)

	SweepDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_sweep_deleted_total",
			Help: "Total number of artifacts deleted by the retention sweeper",
		},
		[]string{"kind"}, // "upload", "project"
	)

	SweepSkippedActiveTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_splitter_sweep_skipped_active_total",
			Help: "Total number of expired artifacts kept because an active job claims them",
		},
	)

	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_splitter_sweep_errors_total",
			Help: "Total number of per-item errors during retention sweeps",
		},
	)

	SweepBytesFreedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip_splitter_sweep_bytes_freed_total",
			Help: "Total number of bytes freed by the retention sweeper",
		},
	)

	SweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_sweep_last_run_timestamp",
			Help: "Unix timestamp of the last retention sweep",
		},
	)

	SweepLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip_splitter_sweep_last_run_duration_seconds",
			Help: "Duration of the last retention sweep in seconds",
		},
	)
)

// Poster metrics
var (
	PosterGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_poster_generations_total",
			Help: "Total number of clip poster generations",
		},
		[]string{"status"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_splitter_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_splitter_filesystem_retry_events_total",
			Help: "Stale file handle retry events by outcome (stale, retry, recovered, exhausted)",
		},
		[]string{"volume", "operation", "event"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_splitter_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
