package segment

import (
	"errors"
	"fmt"
	"math"

	"clip-splitter/internal/mediatypes"
)

// DefaultLength is the fixed clip length in seconds.
const DefaultLength = 120.0

// minTail is the shortest trailing remainder worth its own segment. Anything
// shorter is float noise from the probed duration and is dropped.
const minTail = 0.001

// ErrInvalidDuration is returned when the media duration or segment length
// cannot produce a plan.
var ErrInvalidDuration = errors.New("invalid duration")

// Outcome is the result of transcoding one segment.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Segment describes one fixed-length slice of the source video.
type Segment struct {
	Index      int     `json:"index"`
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	OutputPath string  `json:"outputPath,omitempty"`
	Outcome    Outcome `json:"outcome"`
}

// End returns the offset in seconds where the segment stops.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// Filename returns the clip file name for the segment, e.g. "part3.mp4".
func (s Segment) Filename() string {
	return fmt.Sprintf("part%d%s", s.Index, mediatypes.ClipExtension)
}

// Count returns ceil(duration/length) with trailing float noise ignored.
func Count(duration, length float64) int {
	if !ValidDuration(duration) || !ValidDuration(length) {
		return 0
	}
	n := int(math.Ceil(duration / length))
	if n > 1 && duration-float64(n-1)*length < minTail {
		n--
	}
	return n
}

// Plan splits a media duration into consecutive segments of the given length.
// Every duration lies in (0, length]. The durations sum to the input
// duration except for a dropped tail shorter than a millisecond.
func Plan(duration, length float64) ([]Segment, error) {
	if !ValidDuration(duration) {
		return nil, fmt.Errorf("%w: media duration %v", ErrInvalidDuration, duration)
	}
	if !ValidDuration(length) {
		return nil, fmt.Errorf("%w: segment length %v", ErrInvalidDuration, length)
	}

	n := Count(duration, length)
	segments := make([]Segment, n)
	for i := 0; i < n; i++ {
		start := float64(i) * length
		d := length
		if i == n-1 {
			d = min(duration-start, length)
		}
		segments[i] = Segment{
			Index:    i + 1,
			Start:    start,
			Duration: d,
			Outcome:  OutcomePending,
		}
	}
	return segments, nil
}

// ValidDuration reports whether v is a finite, positive number of seconds.
func ValidDuration(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
