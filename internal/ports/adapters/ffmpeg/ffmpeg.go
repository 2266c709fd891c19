package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/clipwright/clipwright/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inVideo, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inVideo,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) SliceAudio(ctx context.Context, inWav string, startSec, lengthSec float64, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-ss", fmtSeconds(startSec),
		"-t", fmtSeconds(lengthSec),
		"-i", inWav,
		"-c", "copy",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg slice audio: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) RenderClip(ctx context.Context, inVideo string, startSec, endSec float64, outVideo string, opts ports.RenderOpts) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(startSec),
		"-to", fmtSeconds(endSec),
		"-i", inVideo,
	}
	if vf := buildVideoFilter(opts.Aspect, opts.BurnASS); vf != "" {
		args = append(args, "-vf", vf)
	}
	if opts.NormalizeAudio {
		args = append(args, "-af", "loudnorm=I=-16:TP=-1.5:LRA=11")
	}
	preset := opts.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := opts.CRF
	if crf <= 0 {
		crf = 18
	}
	audioBitrate := opts.AudioBitrate
	if audioBitrate == "" {
		audioBitrate = "192k"
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		outVideo,
	)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render clip: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) ExtractFrame(ctx context.Context, inVideo string, atSec float64, outImage string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-ss", fmtSeconds(atSec),
		"-i", inVideo,
		"-frames:v", "1",
		"-q:v", "2",
		outImage,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract frame: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, in string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

// buildVideoFilter derives the crop/scale chain for the requested
// aspect ratio. Vertical output crops the center band first and then
// upscales, which loses less quality than scaling the full frame down
// into a narrow canvas.
func buildVideoFilter(aspect, burnASS string) string {
	var filters []string
	switch aspect {
	case "9:16":
		filters = append(filters,
			"crop=ih*9/16:ih",
			"scale=1080:1920",
		)
	case "1:1":
		filters = append(filters,
			"crop=ih:ih",
			"scale=1080:1080",
		)
	default:
		// 16:9 or unspecified: keep the source framing.
	}
	if burnASS != "" {
		filters = append(filters, "subtitles="+escapeFilterPath(burnASS))
	}
	return strings.Join(filters, ",")
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
