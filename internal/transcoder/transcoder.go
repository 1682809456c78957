package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"clip-splitter/internal/segment"
)

// ErrNoDuration is returned when ffprobe reports no usable duration.
var ErrNoDuration = errors.New("media has no duration")

// Config holds the ffmpeg binaries and the fixed encoding profile.
type Config struct {
	FFmpegPath  string
	FFprobePath string

	Width  int
	Height int

	CRF        int
	Bitrate    string
	BufSize    string
	FPS        int
	Preset     string
	Profile    string
	Level      string
	X264Params string

	Watermark string
}

// DefaultConfig returns the 540x960 H.264 profile used for every clip.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Width:       540,
		Height:      960,
		CRF:         18,
		Bitrate:     "4000k",
		BufSize:     "8000k",
		FPS:         30,
		Preset:      "slower",
		Profile:     "high",
		Level:       "4.1",
		X264Params:  "ref=4:me=umh:subme=8:trellis=2",
		Watermark:   "@short.toons_",
	}
}

// Transcoder builds ffmpeg and ffprobe invocations.
type Transcoder struct {
	config Config
}

// New creates a Transcoder. Zero fields in config fall back to DefaultConfig.
func New(config Config) *Transcoder {
	def := DefaultConfig()
	if config.FFmpegPath == "" {
		config.FFmpegPath = def.FFmpegPath
	}
	if config.FFprobePath == "" {
		config.FFprobePath = def.FFprobePath
	}
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = def.Width, def.Height
	}
	if config.CRF <= 0 {
		config.CRF = def.CRF
	}
	if config.Bitrate == "" {
		config.Bitrate = def.Bitrate
	}
	if config.BufSize == "" {
		config.BufSize = def.BufSize
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.Preset == "" {
		config.Preset = def.Preset
	}
	if config.Profile == "" {
		config.Profile = def.Profile
	}
	if config.Level == "" {
		config.Level = def.Level
	}
	if config.X264Params == "" {
		config.X264Params = def.X264Params
	}
	return &Transcoder{config: config}
}

// Config returns the effective configuration.
func (t *Transcoder) Config() Config {
	return t.config
}

// VideoInfo contains information about a video file.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
	HasAudio bool    `json:"hasAudio"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Probe runs ffprobe and returns duration, dimensions and codec of the first
// video stream.
func (t *Transcoder) Probe(ctx context.Context, filePath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, t.config.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProcessError{
			Command:  t.config.FFprobePath,
			ExitCode: exitCode(err),
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	streamDuration := ""
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.Codec == "" {
				info.Codec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
				streamDuration = s.Duration
			}
		case "audio":
			info.HasAudio = true
		}
	}

	raw := out.Format.Duration
	if raw == "" || raw == "N/A" {
		raw = streamDuration
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || !segment.ValidDuration(d) {
		return nil, fmt.Errorf("%w: %q", ErrNoDuration, raw)
	}
	info.Duration = d
	return info, nil
}

// Overlay carries the per-request text options.
type Overlay struct {
	Caption string
	Font    string
}

// DefaultFont is used when a request does not name one.
const DefaultFont = "Arial"

// SegmentArgs returns the ffmpeg arguments that cut seg out of input,
// fit it to the target frame, draw the overlays and encode to output.
func (t *Transcoder) SegmentArgs(input, output string, seg segment.Segment, overlay Overlay) []string {
	c := t.config
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(seg.Start),
		"-i", input,
		"-t", formatSeconds(seg.Duration),
		"-vf", t.FilterChain(seg.Index, overlay),
		"-c:v", "libx264",
		"-b:v", c.Bitrate,
		"-maxrate", c.Bitrate,
		"-bufsize", c.BufSize,
		"-r", strconv.Itoa(c.FPS),
		"-crf", strconv.Itoa(c.CRF),
		"-preset", c.Preset,
		"-profile:v", c.Profile,
		"-level", c.Level,
		"-x264-params", c.X264Params,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
	return args
}

// SegmentProcess prepares (but does not start) the ffmpeg process for seg.
func (t *Transcoder) SegmentProcess(input, output string, seg segment.Segment, overlay Overlay) *Process {
	cmd := exec.Command(t.config.FFmpegPath, t.SegmentArgs(input, output, seg, overlay)...)
	return newProcess(cmd, fmt.Sprintf("segment %d", seg.Index), seg.Duration)
}

// FrameArgs returns ffmpeg arguments that write a single PNG frame of
// input at offset seconds to stdout.
func (t *Transcoder) FrameArgs(input string, offset float64) []string {
	args := []string{"-hide_banner", "-nostdin"}
	if offset > 0 {
		args = append(args, "-ss", formatSeconds(offset))
	}
	return append(args,
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

// ExtractFrame returns one PNG-encoded frame of input.
func (t *Transcoder) ExtractFrame(ctx context.Context, input string, offset float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, t.FrameArgs(input, offset)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &ProcessError{
			Command:  t.config.FFmpegPath,
			ExitCode: exitCode(err),
			Stderr:   tail(stderr.String(), stderrTailLines),
			Err:      err,
		}
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame for %s", input)
	}
	return stdout.Bytes(), nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
