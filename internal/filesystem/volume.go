package filesystem

import (
	"cmp"
	"path/filepath"
	"slices"
	"strings"
)

const unknownVolume = "unknown"

// VolumeResolver labels paths with the name of the configured directory
// they live under. The longest matching directory wins.
type VolumeResolver struct {
	dirs []namedDir
}

type namedDir struct {
	prefix string // absolute, with trailing separator
	name   string
}

// NewVolumeResolver builds a resolver from volume name to directory, e.g.
// {"uploads": "/data/uploads", "clips": "/data/clips"}.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	dirs := make([]namedDir, 0, len(volumes))
	for name, dir := range volumes {
		dirs = append(dirs, namedDir{prefix: withSeparator(absOr(dir)), name: name})
	}
	slices.SortFunc(dirs, func(a, b namedDir) int {
		return cmp.Compare(len(b.prefix), len(a.prefix))
	})
	return &VolumeResolver{dirs: dirs}
}

// Resolve returns the volume name for path, or "unknown". A nil resolver
// resolves everything to "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return unknownVolume
	}
	p := withSeparator(absOr(path))
	for _, d := range vr.dirs {
		if strings.HasPrefix(p, d.prefix) {
			return d.name
		}
	}
	return unknownVolume
}

func absOr(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func withSeparator(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver installs the resolver used when a RetryConfig
// does not carry its own. Call it once at startup.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}
