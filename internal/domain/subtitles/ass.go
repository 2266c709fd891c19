package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/clipwright/clipwright/internal/types"
)

// Options controls caption appearance. Zero values pick the defaults
// for vertical short-form layouts.
type Options struct {
	FontName string
	// FontSize forces a size; 0 enables dynamic sizing from caption
	// density.
	FontSize int
}

const (
	defaultFontName = "Inter"
	baseFontSize    = 64
	minFontSize     = 36
	// Above this many caption characters per second of clip the font
	// starts shrinking so lines still fit the play area.
	comfortableCharsPerSec = 12.0
)

// Render produces an ASS caption track for the clip window
// [start, end). Event times are clip-local: offsets are relative to the
// clip's own start, not the source video, because the renderer burns
// per-clip subtitle files.
func Render(tr types.Transcript, start, end float64, opts Options) string {
	events := collectEvents(tr, start, end)

	font := opts.FontName
	if font == "" {
		font = defaultFontName
	}
	size := opts.FontSize
	if size <= 0 {
		size = dynamicFontSize(events, end-start)
	}

	var b strings.Builder
	b.WriteString(assHeader(font, size))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ev := range events {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ev.start))
		b.WriteString(",")
		b.WriteString(assTime(ev.end))
		b.WriteString(",Caption,,0,0,0,,")
		b.WriteString(ev.text)
		b.WriteString("\n")
	}
	return b.String()
}

type event struct {
	start time.Duration
	end   time.Duration
	text  string
}

func collectEvents(tr types.Transcript, start, end float64) []event {
	var out []event
	for _, s := range tr.Segments {
		if s.Start >= end || s.End <= start {
			continue
		}
		text := sanitizeASS(s.Text)
		if text == "" {
			continue
		}
		ss := s.Start
		se := s.End
		if ss < start {
			ss = start
		}
		if se > end {
			se = end
		}
		out = append(out, event{
			start: dur(ss - start),
			end:   dur(se - start),
			text:  text,
		})
	}
	return out
}

// dynamicFontSize shrinks the caption font as text density grows so
// dense speech does not overflow the vertical play area.
func dynamicFontSize(events []event, clipDur float64) int {
	if clipDur <= 0 || len(events) == 0 {
		return baseFontSize
	}
	chars := 0
	for _, ev := range events {
		chars += len([]rune(ev.text))
	}
	density := float64(chars) / clipDur
	if density <= comfortableCharsPerSec {
		return baseFontSize
	}
	size := int(float64(baseFontSize) * comfortableCharsPerSec / density)
	if size < minFontSize {
		size = minFontSize
	}
	return size
}

func assHeader(font string, size int) string {
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, %s, %d, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,6,2,2, 80,80,220,1
`, font, size))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
