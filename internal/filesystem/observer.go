package filesystem

import "time"

// RetryEvent is one step of the stale-handle retry loop.
type RetryEvent string

const (
	// EventStale is reported for every ESTALE result.
	EventStale RetryEvent = "stale"
	// EventRetry is reported before each backoff sleep.
	EventRetry RetryEvent = "retry"
	// EventRecovered is reported when an operation succeeds after retrying.
	EventRecovered RetryEvent = "recovered"
	// EventExhausted is reported when the retry budget runs out.
	EventExhausted RetryEvent = "exhausted"
)

// RetryEvents lists every event, for metric label pre-population.
var RetryEvents = []RetryEvent{EventStale, EventRetry, EventRecovered, EventExhausted}

// Observer receives filesystem operation outcomes. The metrics package
// provides the Prometheus implementation; filesystem cannot import it
// without a cycle.
type Observer interface {
	// ObserveOperation is called once per operation with the total time
	// spent including retries. volume is "uploads", "clips" or "unknown".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)
	ObserveRetry(volume, operation string, event RetryEvent)
}

// defaultObserver is nil until SetObserver is called, so tests record nothing.
var defaultObserver Observer

// SetObserver installs the package-level observer. Call it once at startup.
func SetObserver(o Observer) {
	defaultObserver = o
}

func reportOperation(volume, operation string, start time.Time, err error) {
	if o := defaultObserver; o != nil {
		o.ObserveOperation(volume, operation, time.Since(start).Seconds(), err)
	}
}

func reportRetry(volume, operation string, event RetryEvent) {
	if o := defaultObserver; o != nil {
		o.ObserveRetry(volume, operation, event)
	}
}
