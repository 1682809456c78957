package metrics

import "clip-splitter/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver returns the filesystem.Observer that feeds the
// clip_splitter_filesystem_* metrics.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (filesystemObserver) ObserveRetry(volume, operation string, event filesystem.RetryEvent) {
	FilesystemRetryEventsTotal.WithLabelValues(volume, operation, string(event)).Inc()
}
