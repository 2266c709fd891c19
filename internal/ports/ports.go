package ports

import (
	"context"
	"errors"
	"time"

	"github.com/clipwright/clipwright/internal/types"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// ErrObjectNotFound is returned by ObjectStore.Download when the
// requested key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// RenderOpts controls a single transcode invocation.
type RenderOpts struct {
	// Aspect is one of "9:16", "1:1", "16:9".
	Aspect string
	// BurnASS is an optional subtitle file burned into the video.
	BurnASS string
	// Preset and CRF select the speed/quality trade-off.
	Preset string
	CRF    int
	// AudioBitrate like "192k".
	AudioBitrate string
	// NormalizeAudio enables loudness normalization.
	NormalizeAudio bool
}

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inVideo, outWav string) error
	SliceAudio(ctx context.Context, inWav string, startSec, lengthSec float64, outWav string) error
	RenderClip(ctx context.Context, inVideo string, startSec, endSec float64, outVideo string, opts RenderOpts) error
	ExtractFrame(ctx context.Context, inVideo string, atSec float64, outImage string) error
	ProbeDuration(ctx context.Context, in string) (float64, error)
}

// SpeechResult is one chunk's transcription with chunk-local timestamps.
type SpeechResult struct {
	Text     string
	Language string
	Segments []types.Segment
}

type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath, language string) (SpeechResult, error)
}

// Ranker selects highlight segments through an external
// ranking/generation service. RankScenes anchors on pre-detected
// scenes; AnalyzeTranscript is the structurally different fallback that
// picks time ranges directly from the flattened transcript.
type Ranker interface {
	RankScenes(ctx context.Context, scenes []types.DetectedScene, clipCount int, minSec, maxSec float64) ([]types.HighlightSegment, string, error)
	AnalyzeTranscript(ctx context.Context, tr types.Transcript, clipCount int, minSec, maxSec float64) ([]types.HighlightSegment, string, error)
}

// TextWriter produces publish-ready copy for one clip (finalize stage).
type TextWriter interface {
	ClipTexts(ctx context.Context, clipText string, seg types.HighlightSegment) (types.ClipTexts, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, localPath, contentType string) (string, error)
	Download(ctx context.Context, bucket, key, localPath string) error
}

type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}

type JobStore interface {
	InsertJob(ctx context.Context, job *types.Job) error
	UpdateJob(ctx context.Context, job *types.Job) error
	UpsertClip(ctx context.Context, jobID string, clip types.RenderedClip) error
}

// ProgressSink receives progress events. Implementations must be safe
// for concurrent use; stages hold the sink only for their own duration.
type ProgressSink interface {
	Publish(e types.ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(e types.ProgressEvent)

func (f ProgressFunc) Publish(e types.ProgressEvent) { f(e) }
