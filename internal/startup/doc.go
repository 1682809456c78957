// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// The following environment variables are supported:
//
//   - PORT: HTTP server port (default: 5000)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - DATA_DIR: Base for relative directory settings (default: .)
//   - UPLOAD_DIR: Raw uploads, relative to DATA_DIR unless absolute (default: uploads)
//   - CLIPS_DIR: Project directories with rendered clips (default: clips)
//   - STATIC_DIR: Built web UI served at / (default: client/build)
//   - MAX_CONCURRENT_JOBS: Admission ceiling (default: 2)
//   - RETENTION_WINDOW: Age after which artifacts are swept (default: 5m)
//   - SWEEP_INTERVAL: Time between sweeps (default: 5m)
//   - STORAGE_QUOTA: Total bytes for uploads and clips, 0 for unlimited (default: 10GiB)
//   - MAX_UPLOAD_SIZE: Largest accepted upload (default: 5GiB)
//   - SEGMENT_LENGTH: Clip length as Go duration (default: 120s)
//   - VIDEO_CRF, VIDEO_BITRATE, VIDEO_FPS, VIDEO_PRESET: Encoder profile
//   - WATERMARK_TEXT: Watermark drawn on every clip, empty to disable
//   - POSTERS_ENABLED: Write a JPEG poster beside each clip (default: true)
//   - FFMPEG_PATH, FFPROBE_PATH: Binaries to execute
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log static file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// Sizes accept plain byte counts or units: "500MB" is decimal, "10GiB" and
// "10G" are binary.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogTranscoderInit]: ffmpeg/ffprobe availability
//   - [LogStorageInit]: quota and usage found at startup
//   - [LogSweeperInit]: retention window and interval
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownStep], [LogShutdownComplete]
package startup
