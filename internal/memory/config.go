package memory

import (
	"errors"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"clip-splitter/internal/logging"
	"clip-splitter/internal/startup"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left for the ffmpeg and ffprobe child processes, which
// share the container's cgroup.
const DefaultMemoryRatio = 0.5

const (
	sourceGOMEMLIMIT  = "GOMEMLIMIT"
	sourceMEMORYLIMIT = "MEMORY_LIMIT"
	sourceCgroup      = "cgroup"
	sourceNone        = "none"
)

// cgroupMemoryMax is the cgroup v2 memory limit file.
var cgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// setMemoryLimit is swapped in tests.
var setMemoryLimit = debug.SetMemoryLimit

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	// Configured indicates whether a Go memory limit is in effect
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT", "cgroup" or "none"
	Source string

	// ContainerLimit is the container memory limit in bytes (0 if not known)
	ContainerLimit int64

	// GoMemLimit is the configured limit in bytes (0 if not set)
	GoMemLimit int64

	// Ratio is the ratio applied to ContainerLimit (0 if not applicable)
	Ratio float64
}

// ConfigureFromEnv sets the Go memory limit. Call it first in main, before
// large allocations.
//
// Environment variables, in order of precedence:
//   - GOMEMLIMIT: read by the runtime itself; only reported here
//   - MEMORY_LIMIT: container limit, in bytes or with a unit ("2GiB")
//   - MEMORY_RATIO: share of the limit for the Go heap (default: 0.5)
//
// Without MEMORY_LIMIT the cgroup v2 limit is used when one is set.
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: sourceGOMEMLIMIT}
		if limit := setMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	containerLimit, source := containerMemoryLimit()
	if containerLimit <= 0 {
		logging.Debug("No container memory limit found, GOMEMLIMIT not configured")
		return ConfigResult{Source: sourceNone}
	}

	ratio := memoryRatio()
	goMemLimit := int64(float64(containerLimit) * ratio)
	setMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s %s limit)",
		startup.FormatBytes(goMemLimit), ratio*100, startup.FormatBytes(containerLimit), source)

	return ConfigResult{
		Configured:     true,
		Source:         source,
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func containerMemoryLimit() (int64, string) {
	if s := os.Getenv("MEMORY_LIMIT"); s != "" {
		limit, err := startup.ParseBytes(s)
		if err != nil || limit <= 0 {
			logging.Warn("Failed to parse MEMORY_LIMIT %q: %v", s, err)
			return 0, sourceNone
		}
		return limit, sourceMEMORYLIMIT
	}

	limit, err := readCgroupLimit(cgroupMemoryMax)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Debug("Could not read cgroup memory limit: %v", err)
		}
		return 0, sourceNone
	}
	return limit, sourceCgroup
}

// readCgroupLimit parses a memory.max file. "max" means no limit and is
// reported as 0.
func readCgroupLimit(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func memoryRatio() float64 {
	s := os.Getenv("MEMORY_RATIO")
	if s == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", s, err, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	if ratio <= 0 || ratio > 1 {
		logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}
