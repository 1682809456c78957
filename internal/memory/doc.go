// Package memory configures the Go runtime's soft memory limit for
// containerized deployments.
//
// # Overview
//
// Go detects cgroup CPU limits for GOMAXPROCS but not memory limits for
// GOMEMLIMIT. The clip splitter shares its container with ffmpeg, which
// holds decoded frames outside the Go heap, so only part of the container
// limit is given to the runtime.
//
// Call [ConfigureFromEnv] first in main:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// # Environment Variables
//
//   - GOMEMLIMIT: Standard Go variable. When set it wins and is only reported.
//   - MEMORY_LIMIT: Container limit in bytes or with a unit, e.g. from the
//     Kubernetes Downward API.
//   - MEMORY_RATIO: Share of the limit for the Go heap (default: 0.5).
//
// Without MEMORY_LIMIT, the cgroup v2 limit in /sys/fs/cgroup/memory.max
// is used when it is not "max".
//
// # Kubernetes Example
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
package memory
