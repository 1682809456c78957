package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"clip-splitter/internal/logging"
	"clip-splitter/internal/mediatypes"
	"clip-splitter/internal/metrics"

	// Frame decoders
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	// PosterWidth and PosterHeight bound the poster at half the clip frame.
	PosterWidth  = 270
	PosterHeight = 480

	posterQuality = 80
	posterOffset  = 1.0
)

// ErrPostersDisabled is returned by Generate when posters are turned off.
var ErrPostersDisabled = errors.New("posters disabled")

// FrameSource returns one encoded frame of a video.
type FrameSource interface {
	ExtractFrame(ctx context.Context, input string, offset float64) ([]byte, error)
}

// PosterGenerator writes a JPEG still next to each finished clip.
type PosterGenerator struct {
	frames  FrameSource
	enabled bool
}

// NewPosterGenerator creates a generator backed by frames.
func NewPosterGenerator(frames FrameSource, enabled bool) *PosterGenerator {
	if enabled {
		logging.Debug("PosterGenerator: enabled (%dx%d)", PosterWidth, PosterHeight)
	} else {
		logging.Debug("PosterGenerator: disabled")
	}
	return &PosterGenerator{frames: frames, enabled: enabled}
}

// IsEnabled reports whether posters are generated.
func (g *PosterGenerator) IsEnabled() bool {
	return g.enabled
}

// Generate grabs a frame one second into clipPath, falling back to the
// first frame for very short clips, and saves it as part<K>.jpg.
func (g *PosterGenerator) Generate(ctx context.Context, clipPath string) (string, error) {
	if !g.enabled {
		return "", ErrPostersDisabled
	}

	path, err := g.generate(ctx, clipPath)
	if err != nil {
		metrics.PosterGenerationsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.PosterGenerationsTotal.WithLabelValues("success").Inc()
	return path, nil
}

func (g *PosterGenerator) generate(ctx context.Context, clipPath string) (string, error) {
	data, err := g.frames.ExtractFrame(ctx, clipPath, posterOffset)
	if err != nil {
		logging.Debug("Poster frame at %.1fs failed for %s: %v, retrying first frame", posterOffset, clipPath, err)
		data, err = g.frames.ExtractFrame(ctx, clipPath, 0)
		if err != nil {
			return "", fmt.Errorf("extract frame: %w", err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}

	encoded, err := EncodePoster(img)
	if err != nil {
		return "", err
	}

	out := PosterPath(clipPath)
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write poster: %w", err)
	}
	logging.Debug("Poster written: %s (%d bytes)", out, len(encoded))
	return out, nil
}

// EncodePoster fits img into the poster box and encodes it as JPEG.
func EncodePoster(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil frame")
	}
	poster := imaging.Fit(img, PosterWidth, PosterHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, poster, &jpeg.Options{Quality: posterQuality}); err != nil {
		return nil, fmt.Errorf("encode poster: %w", err)
	}
	return buf.Bytes(), nil
}

// PosterPath maps part<K>.mp4 to part<K>.jpg in the same directory.
func PosterPath(clipPath string) string {
	return strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + mediatypes.PosterExtension
}
