package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"clip-splitter/internal/metrics"
)

// ErrQuotaExceeded is returned when accepting an artifact would push total
// storage over the configured quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Accountant measures storage used by uploads and project directories and
// decides whether a new artifact fits under the quota.
type Accountant struct {
	store *Store
	quota int64
}

// NewAccountant returns an accountant for store. A quota <= 0 disables the
// check.
func NewAccountant(store *Store, quota int64) *Accountant {
	return &Accountant{store: store, quota: quota}
}

// Quota returns the configured quota in bytes.
func (a *Accountant) Quota() int64 { return a.quota }

// Usage sums the sizes of all files in the upload directory and all project
// directories. Paths listed in exclude are not counted.
func (a *Accountant) Usage(exclude ...string) (int64, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, p := range exclude {
		skip[filepath.Clean(p)] = struct{}{}
	}

	uploads, err := sumTree(a.store.UploadDir(), skip)
	if err != nil {
		return 0, fmt.Errorf("measure uploads: %w", err)
	}

	projects, err := a.store.ListProjects()
	if err != nil {
		return 0, err
	}
	total := uploads
	for _, p := range projects {
		n, err := sumTree(p.Path, skip)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("measure %s: %w", p.Name, err)
		}
		total += n
	}

	metrics.StorageUsedBytes.Set(float64(total))
	return total, nil
}

// HasCapacity reports whether current usage plus candidate stays within the
// quota. The candidate's own file, if already on disk, belongs in exclude so
// it is not counted twice.
func (a *Accountant) HasCapacity(candidate int64, exclude ...string) (bool, error) {
	if a.quota <= 0 {
		return true, nil
	}
	used, err := a.Usage(exclude...)
	if err != nil {
		return false, err
	}
	return used+candidate <= a.quota, nil
}

// Check is HasCapacity returning ErrQuotaExceeded when the candidate does not
// fit.
func (a *Accountant) Check(candidate int64, exclude ...string) error {
	ok, err := a.HasCapacity(candidate, exclude...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d bytes requested, quota %d", ErrQuotaExceeded, candidate, a.quota)
	}
	return nil
}

// DirSize returns the total size of regular files under path. A single file
// returns its own size.
func DirSize(path string) (int64, error) {
	return sumTree(path, nil)
}

func sumTree(root string, skip map[string]struct{}) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries vanish while the sweeper runs.
			if errors.Is(err, fs.ErrNotExist) {
				if path == root {
					return err
				}
				return nil
			}
			return err
		}
		if _, ok := skip[filepath.Clean(path)]; ok {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
