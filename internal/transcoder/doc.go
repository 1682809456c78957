// Package transcoder wraps the ffmpeg and ffprobe command-line tools.
//
// It provides:
//   - Duration and stream probing via ffprobe JSON output
//   - The per-segment ffmpeg command: seek, 540x960 letterbox fit,
//     drawtext overlays and the fixed H.264 encoding profile
//   - Process, a killable handle whose Kill may race with Start safely
//   - Line-split stderr and progress forwarding to the debug log
//
// FFmpeg and FFprobe must be installed; their paths are configurable.
package transcoder
