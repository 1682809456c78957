package transcoder

import (
	"fmt"
	"strings"
	"unicode"
)

const maxCaptionRunes = 200

// FilterChain builds the -vf graph for one segment: fit into the target
// frame with centered letterbox padding, then the part label, the optional
// caption and the watermark.
func (t *Transcoder) FilterChain(part int, overlay Overlay) string {
	w, h := t.config.Width, t.config.Height
	font := overlay.Font
	if strings.TrimSpace(font) == "" {
		font = DefaultFont
	}

	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h),
		drawtext(fmt.Sprintf("Part %d", part), font, 24, "white", "h*0.2", true),
	}

	if caption := cleanCaption(overlay.Caption); caption != "" {
		filters = append(filters, drawtext(caption, font, 28, "white", "h*0.25", true))
	}
	if t.config.Watermark != "" {
		filters = append(filters, drawtext(t.config.Watermark, font, 20, "white@0.1", "h*0.71", false))
	}

	return strings.Join(filters, ",")
}

func drawtext(text, font string, size int, color, y string, boxed bool) string {
	opts := []string{
		"text=" + escapeDrawtext(text),
		"font=" + escapeOption(font),
		fmt.Sprintf("fontsize=%d", size),
		"fontcolor=" + color,
		"x=(w-text_w)/2",
		"y=" + y,
	}
	if boxed {
		opts = append(opts,
			"box=1",
			"boxcolor=black@0.5",
			"boxborderw=5",
			"shadowcolor=black@0.5",
			"shadowx=2",
			"shadowy=2",
		)
	}
	return "drawtext=" + strings.Join(opts, ":")
}

// cleanCaption flattens control characters and caps the length.
func cleanCaption(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxCaptionRunes {
		s = string(r[:maxCaptionRunes])
	}
	return s
}

// escapeDrawtext escapes text for the three parsers it passes through:
// drawtext expansion, the filter option parser and the filtergraph parser.
func escapeDrawtext(s string) string {
	s = backslashEscape(s, `\%`)
	return escapeOption(s)
}

// escapeOption escapes a filter option value for the option and graph
// parsers.
func escapeOption(s string) string {
	s = backslashEscape(s, `\':`)
	return backslashEscape(s, `\'[],;`)
}

func backslashEscape(s, special string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
