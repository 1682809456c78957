package metrics

import "clip-splitter/internal/filesystem"

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(quotaBytes int64) {
	StorageQuotaBytes.Set(float64(quotaBytes))

	for _, reason := range []string{"busy", "quota"} {
		JobsRejectedTotal.WithLabelValues(reason)
	}

	for _, state := range []string{"completed", "failed", "cancelled"} {
		JobsFinishedTotal.WithLabelValues(state)
	}

	for _, outcome := range []string{"success", "failure", "skipped"} {
		SegmentsTotal.WithLabelValues(outcome)
	}

	for _, kind := range []string{"upload", "project"} {
		SweepDeletedTotal.WithLabelValues(kind)
		StoredArtifacts.WithLabelValues(kind)
	}

	for _, status := range []string{"success", "error"} {
		PosterGenerationsTotal.WithLabelValues(status)
	}

	for _, vol := range []string{"uploads", "clips", "unknown"} {
		for _, op := range []string{"stat", "readdir", "remove"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			for _, ev := range filesystem.RetryEvents {
				FilesystemRetryEventsTotal.WithLabelValues(vol, op, string(ev))
			}
		}
	}
}
