package metrics

import (
	"context"
	"sync"
	"time"

	"clip-splitter/internal/logging"
)

// StatsProvider supplies the point-in-time values the collector publishes.
type StatsProvider interface {
	GetStats() Stats
}

// Stats is a snapshot of job and storage state.
type Stats struct {
	ActiveJobs       int
	StorageUsedBytes int64
	Uploads          int
	Projects         int
}

// Collector refreshes gauges that need a directory walk, which is too
// expensive to do on every scrape.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector creates a collector that polls provider every interval.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{provider: provider, interval: interval}
}

// Start collects once immediately and then every interval until Stop.
// Calling Start on a running collector does nothing.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Stop ends collection and waits for the loop to exit. It is safe to call
// more than once and before Start.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Collector) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	start := time.Now()
	stats := c.provider.GetStats()

	JobsActive.Set(float64(stats.ActiveJobs))
	StorageUsedBytes.Set(float64(stats.StorageUsedBytes))
	StoredArtifacts.WithLabelValues("upload").Set(float64(stats.Uploads))
	StoredArtifacts.WithLabelValues("project").Set(float64(stats.Projects))

	logging.Debug("Metrics collected in %v: activeJobs=%d uploads=%d projects=%d storageUsed=%d bytes",
		time.Since(start), stats.ActiveJobs, stats.Uploads, stats.Projects, stats.StorageUsedBytes)
}
