// Package metrics provides Prometheus instrumentation for the clip splitter.
//
// All metrics are prefixed with "clip_splitter_" and registered at package
// init through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Job Metrics
//
// Track admission and the job lifecycle:
//   - JobsAdmittedTotal: jobs that got a registry slot
//   - JobsRejectedTotal: requests refused by reason (busy, quota)
//   - JobsFinishedTotal: jobs by terminal state (completed, failed, cancelled)
//   - JobsActive: current registry size
//   - JobDuration: admission-to-release wall time
//
// ## Segment Metrics
//   - SegmentsTotal: segment outcomes (success, failure, skipped)
//   - SegmentTranscodeDuration: time spent in one ffmpeg invocation
//   - SegmentsInProgress: running ffmpeg processes
//
// ## Storage and Retention Metrics
//   - StorageUsedBytes, StorageQuotaBytes, UploadBytesTotal
//   - SweepRunsTotal, SweepDeletedTotal, SweepSkippedActiveTotal,
//     SweepErrorsTotal, SweepBytesFreedTotal, SweepLastRunTimestamp,
//     SweepLastRunDuration
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by
// NewFilesystemObserver, labelled by volume ("uploads", "clips").
//
// # Exposing Metrics
//
// Mount promhttp.Handler() on the metrics server:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Gauges that require a directory walk are refreshed by a Collector on an
// interval rather than per scrape.
package metrics
