// Package logging provides a simple leveled logging interface for the
// clip splitter.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (ffmpeg output, progress)
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true. Messages belonging to one processing job can be tagged with
// WithPrefix so that interleaved jobs stay readable.
package logging
