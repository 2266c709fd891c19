// Package render turns validated highlight segments into finished clip
// artifacts, bounding transcode concurrency in fixed-size batches.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/clipwright/clipwright/internal/domain/subtitles"
	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

const defaultBatchWidth = 4

// Quality selects transcode speed/quality settings.
type Quality struct {
	Preset       string
	CRF          int
	AudioBitrate string
}

// StandardQuality is used for pipeline renders; HighQuality for
// single-clip re-renders where latency matters less.
var (
	StandardQuality = Quality{Preset: "veryfast", CRF: 18, AudioBitrate: "192k"}
	HighQuality     = Quality{Preset: "slow", CRF: 16, AudioBitrate: "256k"}
)

// Options controls one render batch.
type Options struct {
	Aspect     string
	Captions   bool
	Subtitle   subtitles.Options
	BatchWidth int
	Quality    Quality

	// ProgressFrom/ProgressTo bound the overall progress window
	// reserved for the render stage; batch completion interpolates
	// inside it.
	ProgressFrom int
	ProgressTo   int
}

type Controller struct {
	video ports.VideoTool
	logf  func(format string, args ...any)
}

func NewController(video ports.VideoTool, logf func(string, ...any)) *Controller {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Controller{video: video, logf: logf}
}

// RenderBatch renders one clip per segment into outDir. Segments are
// processed in fixed-size batches: renders within a batch run in
// parallel, batches run strictly sequentially. Results preserve the
// input segment order even though renders complete out of order. Any
// render failure fails the whole stage; no partial clip set is
// returned.
func (c *Controller) RenderBatch(
	ctx context.Context,
	jobID string,
	source string,
	segs []types.HighlightSegment,
	tr types.Transcript,
	outDir string,
	opts Options,
	sink ports.ProgressSink,
) ([]types.RenderedClip, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("no segments to render")
	}
	width := opts.BatchWidth
	if width <= 0 {
		width = defaultBatchWidth
	}
	if opts.Quality.Preset == "" {
		opts.Quality = StandardQuality
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}

	clips := make([]types.RenderedClip, len(segs))
	for batchStart := 0; batchStart < len(segs); batchStart += width {
		batchEnd := batchStart + width
		if batchEnd > len(segs) {
			batchEnd = len(segs)
		}

		if sink != nil {
			sink.Publish(types.ProgressEvent{
				JobID:   jobID,
				Stage:   types.StageRender,
				Percent: interpolate(opts.ProgressFrom, opts.ProgressTo, batchStart, len(segs)),
				Message: fmt.Sprintf("rendering clips %d-%d of %d", batchStart+1, batchEnd, len(segs)),
			})
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				clip, err := c.RenderOne(ctx, source, segs[i], tr, outDir, fmt.Sprintf("%03d", i+1), opts)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Errorf("render clip %d: %w", i+1, err))
					return
				}
				clips[i] = clip
			}(i)
		}
		wg.Wait()
		if len(errs) > 0 {
			return nil, errs[0]
		}
	}
	return clips, nil
}

// RenderOne renders a single segment: caption track (when requested),
// one transcode, and a thumbnail taken near the clip head. Re-render
// requests reuse this with HighQuality settings.
func (c *Controller) RenderOne(
	ctx context.Context,
	source string,
	seg types.HighlightSegment,
	tr types.Transcript,
	outDir string,
	baseName string,
	opts Options,
) (types.RenderedClip, error) {
	dur := seg.End - seg.Start
	clipPath := filepath.Join(outDir, baseName+".mp4")
	thumbPath := filepath.Join(outDir, baseName+".jpg")

	burnASS := ""
	if opts.Captions {
		ass := subtitles.Render(tr, seg.Start, seg.End, opts.Subtitle)
		assPath := filepath.Join(outDir, baseName+".ass")
		if err := os.WriteFile(assPath, []byte(ass), 0o644); err != nil {
			return types.RenderedClip{}, fmt.Errorf("write captions: %w", err)
		}
		burnASS = assPath
	}

	quality := opts.Quality
	if quality.Preset == "" {
		quality = StandardQuality
	}
	err := c.video.RenderClip(ctx, source, seg.Start, seg.End, clipPath, ports.RenderOpts{
		Aspect:         opts.Aspect,
		BurnASS:        burnASS,
		Preset:         quality.Preset,
		CRF:            quality.CRF,
		AudioBitrate:   quality.AudioBitrate,
		NormalizeAudio: true,
	})
	if err != nil {
		return types.RenderedClip{}, err
	}

	thumbAt := 2.0
	if dur/2 < thumbAt {
		thumbAt = dur / 2
	}
	if err := c.video.ExtractFrame(ctx, clipPath, thumbAt, thumbPath); err != nil {
		return types.RenderedClip{}, fmt.Errorf("extract thumbnail: %w", err)
	}

	return types.RenderedClip{
		ID:            uuid.NewString(),
		VideoPath:     clipPath,
		ThumbnailPath: thumbPath,
		Duration:      dur,
		Segment:       seg,
	}, nil
}

func interpolate(from, to, done, total int) int {
	if total <= 0 || to <= from {
		return from
	}
	return from + (to-from)*done/total
}
