// Package retention periodically deletes uploads and project directories
// that have outlived the retention window, skipping anything an active job
// still claims.
package retention
