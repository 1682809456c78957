// Package main is the clip splitter server.
//
// A client uploads a video with an optional caption and font. The server
// probes its duration, cuts it into 120 second segments, and renders each
// segment with ffmpeg as a 540x960 portrait clip with a "Part N" label,
// the caption and a watermark. The response lists the clip URLs; clips are
// served from /clips/{project}/{filename} until the retention sweeper
// removes them.
//
// # Application Lifecycle
//
//  1. Configuration Loading: environment variables, directory checks
//  2. Storage: upload and clips trees, quota accounting
//  3. Transcoder: ffmpeg/ffprobe availability, encoder profile
//  4. Job Registry: admission ceiling for concurrent uploads
//  5. Retention Sweeper: periodic removal of expired artifacts
//  6. HTTP Servers: application routes and the optional metrics server
//  7. Graceful Shutdown: SIGINT/SIGTERM drain the server
//
// # HTTP Server
//
// The main server (default port 5000) serves:
//
//   - POST /upload: multipart upload (video, customMessage, fontStyle)
//   - GET /clips/{project}/{filename}: clip or poster, ?download for attachment
//   - GET /health, /healthz, /livez, /readyz, /version
//   - GET /: the web client, when STATIC_DIR holds a build
//
// The metrics server (default port 9090) exposes /metrics for Prometheus.
//
// # Graceful Shutdown
//
//  1. Mark the server draining so readiness fails
//  2. Cancel running jobs, killing their ffmpeg processes
//  3. Shut down the HTTP server (30s timeout)
//  4. Shut down the metrics server
//  5. Stop the retention sweeper and metrics collector
//
// Artifacts left by cancelled jobs are removed by the next sweep.
//
// # Related Packages
//
//   - [clip-splitter/internal/handlers]: HTTP request handlers
//   - [clip-splitter/internal/processor]: per-job segment pipeline
//   - [clip-splitter/internal/jobs]: admission and cancellation
//   - [clip-splitter/internal/artifacts]: on-disk layout and quota
//   - [clip-splitter/internal/retention]: expiry sweeps
//   - [clip-splitter/internal/transcoder]: ffmpeg and ffprobe
//   - [clip-splitter/internal/startup]: configuration and lifecycle logging
//
// See also the clipctl maintenance tool in cmd/clipctl.
package main
