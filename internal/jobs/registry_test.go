package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeProcess struct {
	kills atomic.Int32
}

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	return nil
}

func mustAdmit(t *testing.T, r *Registry) *Job {
	t.Helper()
	job, err := r.TryAdmit(context.Background())
	if err != nil {
		t.Fatalf("TryAdmit() error = %v", err)
	}
	return job
}

func TestNewRegistryDefaultCeiling(t *testing.T) {
	if got := NewRegistry(0).Ceiling(); got != DefaultCeiling {
		t.Errorf("Ceiling() = %d, want %d", got, DefaultCeiling)
	}
	if got := NewRegistry(5).Ceiling(); got != 5 {
		t.Errorf("Ceiling() = %d, want 5", got)
	}
}

func TestTryAdmitCeiling(t *testing.T) {
	r := NewRegistry(2)

	first := mustAdmit(t, r)
	second := mustAdmit(t, r)
	if first.ID == second.ID {
		t.Fatal("jobs share an id")
	}

	if _, err := r.TryAdmit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("third TryAdmit() error = %v, want ErrBusy", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	r.Unregister(first.ID)

	third := mustAdmit(t, r)
	if !registered(r, third.ID) {
		t.Error("admitted job is not active")
	}
}

func TestTryAdmitConcurrent(t *testing.T) {
	r := NewRegistry(3)

	var wg sync.WaitGroup
	var admitted, busy atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.TryAdmit(context.Background())
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrBusy):
				busy.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 3 {
		t.Errorf("admitted = %d, want 3", admitted.Load())
	}
	if busy.Load() != 47 {
		t.Errorf("busy = %d, want 47", busy.Load())
	}
}

func TestCancelKillsAndRemoves(t *testing.T) {
	r := NewRegistry(2)
	job := mustAdmit(t, r)
	proc := &fakeProcess{}

	if err := r.Register(job.ID, proc, "/data/uploads/1-a.mp4", "/data/clips/project 1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !r.Claims("/data/clips/project 1") {
		t.Fatal("project should be claimed while job is registered")
	}

	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if proc.kills.Load() != 1 {
		t.Errorf("Kill called %d times, want 1", proc.kills.Load())
	}
	if registered(r, job.ID) || r.Len() != 0 {
		t.Error("cancelled job still registered")
	}
	if r.Claims("/data/clips/project 1") || r.Claims("/data/uploads/1-a.mp4") {
		t.Error("cancelled job still claims its paths")
	}
	if !job.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}
	if !errors.Is(context.Cause(job.Context()), ErrCancelled) {
		t.Errorf("context cause = %v, want ErrCancelled", context.Cause(job.Context()))
	}

	if err := r.Cancel(job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrJobNotFound", err)
	}
}

func TestRegisterAfterCancel(t *testing.T) {
	r := NewRegistry(1)
	job := mustAdmit(t, r)

	if err := r.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(job.ID, &fakeProcess{}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Register() after Cancel error = %v, want ErrJobNotFound", err)
	}
}

func TestCancelWithoutProcess(t *testing.T) {
	r := NewRegistry(1)
	job := mustAdmit(t, r)
	proc := &fakeProcess{}

	if err := r.Register(job.ID, proc); err != nil {
		t.Fatal(err)
	}
	r.Detach(job.ID)

	if err := r.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}
	if proc.kills.Load() != 0 {
		t.Error("detached process was killed")
	}
}

func TestUnregisterReleasesContext(t *testing.T) {
	r := NewRegistry(1)
	job := mustAdmit(t, r)
	if err := r.SetState(job.ID, StateCompleted); err != nil {
		t.Fatal(err)
	}

	r.Unregister(job.ID)
	if job.Context().Err() == nil {
		t.Error("context not cancelled after Unregister")
	}
	if job.Cancelled() {
		t.Error("Cancelled() = true after normal Unregister")
	}

	// No-op for unknown ids.
	r.Unregister(job.ID)
	r.Unregister("missing")
	if err := r.SetState(job.ID, StateFailed); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("SetState() on removed job error = %v", err)
	}
}

func TestCancelAll(t *testing.T) {
	r := NewRegistry(3)
	procs := make([]*fakeProcess, 3)
	for i := range procs {
		job := mustAdmit(t, r)
		procs[i] = &fakeProcess{}
		if err := r.Register(job.ID, procs[i]); err != nil {
			t.Fatal(err)
		}
	}

	if n := r.CancelAll(); n != 3 {
		t.Errorf("CancelAll() = %d, want 3", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after CancelAll", r.Len())
	}
	for i, p := range procs {
		if p.kills.Load() != 1 {
			t.Errorf("process %d killed %d times", i, p.kills.Load())
		}
	}
}

func TestTryAdmitAfterCancelAll(t *testing.T) {
	r := NewRegistry(2)
	if n := r.CancelAll(); n != 0 {
		t.Errorf("CancelAll() on empty registry = %d, want 0", n)
	}

	job, err := r.TryAdmit(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("TryAdmit() after CancelAll error = %v, want ErrClosed", err)
	}
	if job != nil {
		t.Error("TryAdmit() returned a job from a closed registry")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestClaims(t *testing.T) {
	r := NewRegistry(1)
	job := mustAdmit(t, r)
	if err := r.Claim(job.ID, "/data/uploads/1-a.mp4", "/data/clips/project 4/part2.mp4"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/data/uploads/1-a.mp4", true},
		{"/data/uploads/1-a.mp4/", true},
		{"/data/clips/project 4", true},
		{"/data/clips/project 4/part2.mp4", true},
		{"/data/clips/project 40", false},
		{"/data/uploads/2-b.mp4", false},
		{"/data/clips/project 5", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := r.Claims(tt.path); got != tt.want {
				t.Errorf("Claims(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	if err := r.Claim("missing", "/x"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Claim() for unknown job error = %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry(2)
	a := mustAdmit(t, r)
	b := mustAdmit(t, r)
	if err := r.Register(b.ID, &fakeProcess{}, "/data/clips/project 1"); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
	byID := map[string]Info{snap[0].ID: snap[0], snap[1].ID: snap[1]}
	if got := byID[a.ID]; got.State != StateAdmitted || got.Running {
		t.Errorf("job a = %+v", got)
	}
	if got := byID[b.ID]; got.State != StateRunning || !got.Running || len(got.Paths) != 1 {
		t.Errorf("job b = %+v", got)
	}
}

func TestParentContextCancellation(t *testing.T) {
	r := NewRegistry(1)
	parent, cancel := context.WithCancel(context.Background())
	job, err := r.TryAdmit(parent)
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	<-job.Context().Done()
	if job.Cancelled() {
		t.Error("parent cancellation reported as registry cancellation")
	}
	// Slot is still held until the owner unregisters.
	if !registered(r, job.ID) {
		t.Error("job left the registry without Unregister or Cancel")
	}
}

func registered(r *Registry, id string) bool {
	for _, info := range r.Snapshot() {
		if info.ID == id {
			return true
		}
	}
	return false
}
