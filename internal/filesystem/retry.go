package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"clip-splitter/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver for this operation.
	// If nil, the package-level default is used.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isNFSStaleError reports whether err is, or wraps, ESTALE.
func isNFSStaleError(err error) bool {
	return errors.Is(err, syscall.ESTALE)
}

// withRetry runs op until it succeeds, fails with a non-ESTALE error, or the
// retry budget is spent. Backoff doubles up to MaxBackoff.
func withRetry[T any](opName, path string, config RetryConfig, op func() (T, error)) (T, error) {
	start := time.Now()
	volume := config.resolveVolume(path)
	backoff := config.InitialBackoff

	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := op()
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", opName, attempt, path)
				reportRetry(volume, opName, EventRecovered)
			}
			reportOperation(volume, opName, start, nil)
			return result, nil
		}

		lastErr = err
		if !isNFSStaleError(err) {
			reportOperation(volume, opName, start, err)
			return zero, err
		}
		reportRetry(volume, opName, EventStale)

		if attempt == config.MaxRetries {
			break
		}
		reportRetry(volume, opName, EventRetry)
		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			opName, path, backoff, attempt+1, config.MaxRetries)
		time.Sleep(backoff)
		backoff = min(backoff*2, config.MaxBackoff)
	}

	logging.Warn("NFS %s failed after %d retries for %s: %v", opName, config.MaxRetries, path, lastErr)
	reportRetry(volume, opName, EventExhausted)
	reportOperation(volume, opName, start, lastErr)
	return zero, lastErr
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// ReadDirWithRetry performs os.ReadDir with retry logic for NFS stale file handle errors
func ReadDirWithRetry(path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry("readdir", path, config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// RemoveWithRetry removes a file, or a directory tree when recursive is set,
// retrying on NFS stale file handle errors. A path that is already gone is
// not an error.
func RemoveWithRetry(path string, recursive bool, config RetryConfig) error {
	_, err := withRetry("remove", path, config, func() (struct{}, error) {
		var err error
		if recursive {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		return struct{}{}, err
	})
	return err
}
