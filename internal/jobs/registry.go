package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clip-splitter/internal/logging"
	"clip-splitter/internal/metrics"
)

var (
	// ErrBusy is returned by TryAdmit when the concurrency ceiling is reached.
	ErrBusy = errors.New("server busy: too many concurrent jobs")
	// ErrJobNotFound is returned when a job is no longer registered, either
	// because it finished or because it was cancelled.
	ErrJobNotFound = errors.New("job not found")
	// ErrCancelled is the context cause of a job removed by Cancel.
	ErrCancelled = errors.New("job cancelled")
	// ErrClosed is returned by TryAdmit once CancelAll has run.
	ErrClosed = errors.New("job registry closed: shutting down")
)

// DefaultCeiling is the default number of jobs allowed to run at once.
const DefaultCeiling = 2

// State is the lifecycle state of a job.
type State string

const (
	StateAdmitted  State = "admitted"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Process is a killable external process attached to a job while one of its
// segments is transcoding.
type Process interface {
	Kill() error
}

// Job is a handle to one admitted request. Its context is cancelled with
// cause ErrCancelled when the job is cancelled and plainly when it is
// unregistered.
type Job struct {
	ID       string
	Admitted time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Context returns the job's context.
func (j *Job) Context() context.Context { return j.ctx }

// Cancelled reports whether the job was removed by Cancel.
func (j *Job) Cancelled() bool {
	return errors.Is(context.Cause(j.ctx), ErrCancelled)
}

// Info is a point-in-time view of a registered job.
type Info struct {
	ID       string    `json:"id"`
	State    State     `json:"state"`
	Admitted time.Time `json:"admitted"`
	Running  bool      `json:"running"`
	Paths    []string  `json:"paths,omitempty"`
}

type entry struct {
	job   *Job
	state State
	proc  Process
	paths []string
}

// Registry tracks in-flight jobs. Every mutation happens under one mutex, so
// admission, process attachment, cancellation and the sweeper's claim
// checks all see a consistent view.
type Registry struct {
	mu      sync.Mutex
	ceiling int
	closed  bool
	entries map[string]*entry
}

// NewRegistry creates a registry admitting at most ceiling jobs at once.
func NewRegistry(ceiling int) *Registry {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Registry{
		ceiling: ceiling,
		entries: make(map[string]*entry),
	}
}

// Ceiling returns the concurrency ceiling.
func (r *Registry) Ceiling() int { return r.ceiling }

// TryAdmit reserves a slot for a new job, or returns ErrBusy if the ceiling
// is reached and ErrClosed after CancelAll. The slot is held until
// Unregister or Cancel.
func (r *Registry) TryAdmit(parent context.Context) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if len(r.entries) >= r.ceiling {
		metrics.JobsRejectedTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancelCause(parent)
	job := &Job{
		ID:       uuid.NewString(),
		Admitted: time.Now(),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.entries[job.ID] = &entry{job: job, state: StateAdmitted}

	metrics.JobsAdmittedTotal.Inc()
	metrics.JobsActive.Set(float64(len(r.entries)))
	return job, nil
}

// Claim adds owned paths to a job. Claimed paths are protected from the
// retention sweeper until the job leaves the registry.
func (r *Registry) Claim(id string, paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("claim paths for %s: %w", id, ErrJobNotFound)
	}
	e.paths = appendClean(e.paths, paths...)
	return nil
}

// Register attaches a process to a job and claims its paths. It must be
// called before the process starts: if the job has already been cancelled
// it returns ErrJobNotFound and the caller must not start the process.
func (r *Registry) Register(id string, proc Process, paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("register process for %s: %w", id, ErrJobNotFound)
	}
	e.proc = proc
	e.state = StateRunning
	e.paths = appendClean(e.paths, paths...)
	return nil
}

// Detach drops the process handle once it has exited. The job keeps its
// slot and its claimed paths.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.proc = nil
	}
}

// SetState records a state transition for a registered job.
func (r *Registry) SetState(id string, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("set state for %s: %w", id, ErrJobNotFound)
	}
	e.state = state
	return nil
}

// Unregister removes a job and releases its slot. It is safe to call for a
// job that was already cancelled.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		metrics.JobsActive.Set(float64(len(r.entries)))
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	switch e.state {
	case StateCompleted, StateFailed:
		metrics.JobsFinishedTotal.WithLabelValues(string(e.state)).Inc()
		metrics.JobDuration.Observe(time.Since(e.job.Admitted).Seconds())
	}
	e.job.cancel(nil)
}

// Cancel kills the job's current process, if any, cancels its context and
// removes it from the registry. Files the job owned are left in place for
// the retention sweeper.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		metrics.JobsActive.Set(float64(len(r.entries)))
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("cancel %s: %w", id, ErrJobNotFound)
	}

	e.job.cancel(ErrCancelled)
	if e.proc != nil {
		if err := e.proc.Kill(); err != nil {
			logging.Warn("Failed to kill process for job %s: %v", id, err)
		}
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(StateCancelled)).Inc()
	metrics.JobDuration.Observe(time.Since(e.job.Admitted).Seconds())
	logging.Info("Cancelled job %s (was %s)", id, e.state)
	return nil
}

// CancelAll closes the registry to new jobs, cancels every registered job
// and returns how many there were. No job can be admitted after the ids are
// collected.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		if err := r.Cancel(id); err == nil {
			n++
		}
	}
	return n
}

// Claims reports whether any registered job owns path, owns something
// inside it, or owns a directory containing it.
func (r *Registry) Claims(path string) bool {
	path = filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		for _, owned := range e.paths {
			if owned == path || isWithin(owned, path) || isWithin(path, owned) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns all registered jobs ordered by admission time.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Info{
			ID:       e.job.ID,
			State:    e.state,
			Admitted: e.job.Admitted,
			Running:  e.proc != nil,
			Paths:    append([]string(nil), e.paths...),
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Admitted.Before(out[j].Admitted) })
	return out
}

func appendClean(dst []string, paths ...string) []string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		dst = append(dst, filepath.Clean(p))
	}
	return dst
}

// isWithin reports whether child lies strictly inside dir.
func isWithin(child, dir string) bool {
	return strings.HasPrefix(child, dir+string(filepath.Separator))
}
