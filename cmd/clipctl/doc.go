// Command clipctl inspects and maintains the clip splitter's storage
// without going through the HTTP server.
//
// Usage:
//
//	clipctl usage [--quota 10GiB]
//	clipctl sweep [--window 5m] [--json]
//	clipctl plan <duration-seconds> [--length 120s]
//	clipctl probe <file> [--ffprobe ffprobe]
//	clipctl version
//
// Directory flags default to the server's environment variables (DATA_DIR,
// UPLOAD_DIR, CLIPS_DIR, STORAGE_QUOTA), so running clipctl beside the
// server operates on the same trees.
//
// A sweep run here cannot see which artifacts a running server's jobs
// still hold. Use a window longer than the longest upload.
package main
