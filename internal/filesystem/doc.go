/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

The upload and clip directories are often mounted from network storage. Stat,
ReadDir and Remove are wrapped so that ESTALE (errno 116) is retried with
exponential backoff while every other error is returned immediately.

	info, err := filesystem.StatWithRetry(clipPath, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff, 500ms cap.

Operations are labelled with a volume name resolved by longest-prefix match
against the configured directories, and reported through an Observer set with
SetObserver. Without an observer nothing is recorded.
*/
package filesystem
