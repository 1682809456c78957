package retention

import (
	"sync"
	"sync/atomic"
	"time"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/metrics"
)

const (
	// DefaultWindow is how long an artifact lives before it may be swept.
	DefaultWindow = 5 * time.Minute
	// DefaultInterval is the time between sweeps.
	DefaultInterval = 5 * time.Minute
)

// Claimer reports whether an active job still owns a path.
type Claimer interface {
	Claims(path string) bool
}

// Result counts what one sweep did.
type Result struct {
	Deleted    int   `json:"deleted"`
	Skipped    int   `json:"skipped"`
	Errors     int   `json:"errors"`
	BytesFreed int64 `json:"bytesFreed"`
}

// Sweeper deletes uploads and project directories older than the retention
// window that no active job claims.
type Sweeper struct {
	store    *artifacts.Store
	claims   Claimer
	window   time.Duration
	interval time.Duration
	now      func() time.Time

	// runMu keeps sweeps from overlapping when Sweep is also called
	// directly.
	runMu sync.Mutex

	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a sweeper. Non-positive durations use the defaults.
func NewSweeper(store *artifacts.Store, claims Claimer, window, interval time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:    store,
		claims:   claims,
		window:   window,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Window returns the retention window.
func (s *Sweeper) Window() time.Duration { return s.window }

// Interval returns the sweep interval.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Start runs a sweep immediately and then on every interval until Stop.
// Only the first call has an effect.
func (s *Sweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop()
}

// Stop ends the loop and waits for a running sweep to finish. It is safe
// to call more than once, and before Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if !s.started.Load() {
		return
	}
	select {
	case <-s.doneChan:
	case <-time.After(30 * time.Second):
		logging.Warn("Retention sweeper did not stop within 30s")
	}
}

func (s *Sweeper) loop() {
	defer close(s.doneChan)

	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopChan:
			return
		}
	}
}

// Sweep deletes every expired, unclaimed artifact. Failures on one item
// are logged and counted and do not stop the rest.
func (s *Sweeper) Sweep() Result {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	cutoff := s.now().Add(-s.window)
	var res Result

	uploads, err := s.store.ListUploads()
	if err != nil {
		logging.Error("Retention sweep: %v", err)
		res.Errors++
		metrics.SweepErrorsTotal.Inc()
	}
	projects, err := s.store.ListProjects()
	if err != nil {
		logging.Error("Retention sweep: %v", err)
		res.Errors++
		metrics.SweepErrorsTotal.Inc()
	}

	for _, a := range append(uploads, projects...) {
		if !a.ModTime.Before(cutoff) {
			continue
		}
		if s.claims != nil && s.claims.Claims(a.Path) {
			logging.Debug("Retention sweep: keeping %s %s, claimed by an active job", a.Kind, a.Name)
			res.Skipped++
			metrics.SweepSkippedActiveTotal.Inc()
			continue
		}

		freed, err := s.store.Remove(a)
		if err != nil {
			logging.Error("Retention sweep: %v", err)
			res.Errors++
			metrics.SweepErrorsTotal.Inc()
			continue
		}

		res.Deleted++
		res.BytesFreed += freed
		metrics.SweepDeletedTotal.WithLabelValues(string(a.Kind)).Inc()
		metrics.SweepBytesFreedTotal.Add(float64(freed))
		logging.Info("Cleaned up old %s: %s", a.Kind, a.Name)
	}

	metrics.SweepRunsTotal.Inc()
	metrics.SweepLastRunTimestamp.Set(float64(s.now().Unix()))
	metrics.SweepLastRunDuration.Set(time.Since(start).Seconds())

	if res.Deleted > 0 || res.Errors > 0 {
		logging.Info("Retention sweep: deleted %d, kept %d active, %d errors, freed %.2f MB",
			res.Deleted, res.Skipped, res.Errors, float64(res.BytesFreed)/(1024*1024))
	} else {
		logging.Debug("Retention sweep: nothing to delete (%d active kept)", res.Skipped)
	}
	return res
}
