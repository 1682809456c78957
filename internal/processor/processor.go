package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"clip-splitter/internal/artifacts"
	"clip-splitter/internal/jobs"
	"clip-splitter/internal/logging"
	"clip-splitter/internal/metrics"
	"clip-splitter/internal/segment"
	"clip-splitter/internal/transcoder"
)

var (
	// ErrSegmentFailed wraps the cause of one failed segment. It never
	// aborts the batch.
	ErrSegmentFailed = errors.New("segment transcode failed")
	// ErrTotalFailure is reported when no segment produced a clip.
	ErrTotalFailure = errors.New("all segments failed")
)

// Command is one prepared segment invocation. It is attached to the job
// registry before Start so a cancellation can always reach it.
type Command interface {
	Start() error
	Wait() error
	Kill() error
}

// Encoder prepares the command that produces one segment.
type Encoder interface {
	SegmentCommand(input, output string, seg segment.Segment, overlay transcoder.Overlay) Command
}

// PosterGenerator writes a still image for a finished clip and returns its
// path.
type PosterGenerator interface {
	Generate(ctx context.Context, clipPath string) (string, error)
}

// NewFFmpegEncoder adapts a transcoder to Encoder.
func NewFFmpegEncoder(t *transcoder.Transcoder) Encoder {
	return ffmpegEncoder{t: t}
}

type ffmpegEncoder struct {
	t *transcoder.Transcoder
}

func (e ffmpegEncoder) SegmentCommand(input, output string, seg segment.Segment, overlay transcoder.Overlay) Command {
	return e.t.SegmentProcess(input, output, seg, overlay)
}

// Summary is the per-request outcome reported to the client.
type Summary struct {
	TotalSegments  int  `json:"totalSegments"`
	ProcessedClips int  `json:"processedClips"`
	FailedClips    int  `json:"failedClips"`
	Success        bool `json:"success"`
}

// Clip describes one finished segment.
type Clip struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Part      int    `json:"part"`
	URL       string `json:"url"`
	PosterURL string `json:"posterUrl,omitempty"`
}

// Result is everything Run produced.
type Result struct {
	Summary   Summary
	Clips     []Clip
	Segments  []segment.Segment
	Failures  []error
	Cancelled bool
}

// Err returns jobs.ErrCancelled for a cancelled run, ErrTotalFailure when
// nothing succeeded, and nil otherwise.
func (r Result) Err() error {
	switch {
	case r.Cancelled:
		return jobs.ErrCancelled
	case !r.Summary.Success:
		return ErrTotalFailure
	}
	return nil
}

// Summarize counts segment outcomes. Segments never attempted count as
// failed.
func Summarize(segments []segment.Segment) Summary {
	s := Summary{TotalSegments: len(segments)}
	for _, seg := range segments {
		if seg.Outcome == segment.OutcomeSuccess {
			s.ProcessedClips++
		} else {
			s.FailedClips++
		}
	}
	s.Success = s.ProcessedClips > 0
	return s
}

// Processor runs the segment plan of one job.
type Processor struct {
	registry *jobs.Registry
	store    *artifacts.Store
	encoder  Encoder
	posters  PosterGenerator
}

// New creates a Processor. posters may be nil.
func New(registry *jobs.Registry, store *artifacts.Store, encoder Encoder, posters PosterGenerator) *Processor {
	return &Processor{
		registry: registry,
		store:    store,
		encoder:  encoder,
		posters:  posters,
	}
}

// Run transcodes every segment in order, one ffmpeg process at a time.
// A failed segment is recorded and the loop moves on. If the job is
// cancelled the loop stops at the next boundary and the remaining segments
// count as failed. The input upload is removed afterwards in every case.
func (p *Processor) Run(ctx context.Context, job *jobs.Job, input string, project artifacts.Project, segments []segment.Segment, overlay transcoder.Overlay) Result {
	log := logging.WithPrefix("job " + shortID(job.ID))
	res := Result{Segments: segments}

	if err := p.registry.Claim(job.ID, input, project.Path); err != nil {
		res.Cancelled = true
	} else if err := p.registry.SetState(job.ID, jobs.StateRunning); err != nil {
		res.Cancelled = true
	}

	for i := range segments {
		seg := &segments[i]
		seg.OutputPath = filepath.Join(project.Path, seg.Filename())

		if res.Cancelled || ctx.Err() != nil || job.Cancelled() {
			res.Cancelled = true
			break
		}

		err := p.runSegment(job.ID, input, seg, overlay, log)
		if err != nil {
			if errors.Is(err, jobs.ErrJobNotFound) || errors.Is(err, transcoder.ErrKilled) || job.Cancelled() {
				res.Cancelled = true
			}
			seg.Outcome = segment.OutcomeFailure
			res.Failures = append(res.Failures, fmt.Errorf("%w: part %d: %w", ErrSegmentFailed, seg.Index, err))
			metrics.SegmentsTotal.WithLabelValues("failure").Inc()
			log.Error("Error processing segment %d: %v", seg.Index, err)
			continue
		}

		seg.Outcome = segment.OutcomeSuccess
		metrics.SegmentsTotal.WithLabelValues("success").Inc()
		res.Clips = append(res.Clips, p.clipFor(ctx, project, seg, log))
	}

	for i := range segments {
		if segments[i].Outcome == segment.OutcomePending {
			segments[i].Outcome = segment.OutcomeFailure
			metrics.SegmentsTotal.WithLabelValues("skipped").Inc()
		}
	}

	p.removeInput(input, log)

	res.Summary = Summarize(segments)
	if res.Cancelled {
		log.Warn("Cancelled after %d of %d segments", res.Summary.ProcessedClips, res.Summary.TotalSegments)
		return res
	}

	state := jobs.StateCompleted
	if !res.Summary.Success {
		state = jobs.StateFailed
	}
	if err := p.registry.SetState(job.ID, state); err != nil {
		res.Cancelled = true
	}
	log.Info("Finished: %d processed, %d failed of %d segments",
		res.Summary.ProcessedClips, res.Summary.FailedClips, res.Summary.TotalSegments)
	return res
}

func (p *Processor) runSegment(jobID, input string, seg *segment.Segment, overlay transcoder.Overlay, log logging.Prefixed) error {
	cmd := p.encoder.SegmentCommand(input, seg.OutputPath, *seg, overlay)

	if err := p.registry.Register(jobID, cmd, seg.OutputPath); err != nil {
		return err
	}
	defer p.registry.Detach(jobID)

	log.Info("Started processing segment %d (%.2fs-%.2fs)", seg.Index, seg.Start, seg.End())
	metrics.SegmentsInProgress.Inc()
	start := time.Now()

	err := cmd.Start()
	if err == nil {
		err = cmd.Wait()
	}

	metrics.SegmentsInProgress.Dec()
	metrics.SegmentTranscodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	size, err := p.store.VerifyOutput(seg.OutputPath)
	if err != nil {
		return fmt.Errorf("verify output: %w", err)
	}
	log.Info("Segment %d processed (%.2f MB)", seg.Index, megabytes(size))
	return nil
}

func (p *Processor) clipFor(ctx context.Context, project artifacts.Project, seg *segment.Segment, log logging.Prefixed) Clip {
	clip := Clip{
		Path:     seg.OutputPath,
		Filename: seg.Filename(),
		Part:     seg.Index,
		URL:      ClipURL(project.Name, seg.Filename()),
	}
	if p.posters == nil {
		return clip
	}

	posterPath, err := p.posters.Generate(ctx, seg.OutputPath)
	if err != nil {
		log.Warn("Poster for segment %d failed: %v", seg.Index, err)
		return clip
	}
	clip.PosterURL = ClipURL(project.Name, filepath.Base(posterPath))
	return clip
}

func (p *Processor) removeInput(input string, log logging.Prefixed) {
	size, sizeErr := artifacts.DirSize(input)
	if err := p.store.RemoveFile(input); err != nil {
		log.Error("Error cleaning up original file: %v", err)
		return
	}
	if sizeErr == nil {
		log.Info("Cleaned up original file (%.2f MB)", megabytes(size))
	}
}

// ClipURL is the public path of a file inside a project directory.
func ClipURL(project, filename string) string {
	return "/clips/" + url.PathEscape(project) + "/" + url.PathEscape(filename)
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
