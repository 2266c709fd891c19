package transcribe

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

const (
	defaultChunkLength = 300.0
	defaultBatchWidth  = 4
)

// Config tunes audio chunking and transcription concurrency.
type Config struct {
	// ChunkLength is the fixed chunk size in seconds.
	ChunkLength float64
	// BatchWidth is how many chunks are transcribed concurrently.
	// Batches run strictly sequentially.
	BatchWidth int
	// Language is an optional hint forwarded to the STT service.
	Language string
}

func (c Config) withDefaults() Config {
	if c.ChunkLength <= 0 {
		c.ChunkLength = defaultChunkLength
	}
	if c.BatchWidth <= 0 {
		c.BatchWidth = defaultBatchWidth
	}
	return c
}

// Chunker turns a local media file into one Transcript covering the
// whole file by transcribing fixed-length audio chunks concurrently and
// merging chunk-local timestamps onto the global timeline.
type Chunker struct {
	video ports.VideoTool
	stt   ports.SpeechToText
	logf  func(format string, args ...any)
}

func New(video ports.VideoTool, stt ports.SpeechToText, logf func(string, ...any)) *Chunker {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Chunker{video: video, stt: stt, logf: logf}
}

type chunkPlan struct {
	index  int
	start  float64
	length float64
	path   string
}

// Transcribe extracts mono 16kHz audio once, slices it into fixed-size
// chunks, and transcribes them in batches. A single chunk failure
// aborts the whole stage: a partial transcript is never accepted.
// Temporary chunk files and the extracted audio are removed on the way
// out whether or not transcription succeeded.
func (c *Chunker) Transcribe(ctx context.Context, videoPath, workDir string, cfg Config) (types.Transcript, error) {
	cfg = cfg.withDefaults()

	wav := filepath.Join(workDir, "audio.wav")
	defer c.removeQuiet(wav)
	if err := c.video.ExtractAudioMono16k(ctx, videoPath, wav); err != nil {
		return types.Transcript{}, fmt.Errorf("extract audio: %w", err)
	}

	audioDur, err := c.video.ProbeDuration(ctx, wav)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("probe audio duration: %w", err)
	}
	if audioDur <= 0 {
		return types.Transcript{}, fmt.Errorf("audio has no duration")
	}

	plans := planChunks(audioDur, cfg.ChunkLength, workDir)
	defer func() {
		for _, p := range plans {
			c.removeQuiet(p.path)
		}
	}()
	c.logf("transcribe: %d chunks of up to %.0fs, batch width %d", len(plans), cfg.ChunkLength, cfg.BatchWidth)

	for _, p := range plans {
		if err := c.video.SliceAudio(ctx, wav, p.start, p.length, p.path); err != nil {
			return types.Transcript{}, fmt.Errorf("slice chunk %d: %w", p.index, err)
		}
	}

	results := make([]ports.SpeechResult, len(plans))
	for batchStart := 0; batchStart < len(plans); batchStart += cfg.BatchWidth {
		batchEnd := batchStart + cfg.BatchWidth
		if batchEnd > len(plans) {
			batchEnd = len(plans)
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, p := range plans[batchStart:batchEnd] {
			wg.Add(1)
			go func(p chunkPlan) {
				defer wg.Done()
				res, err := c.stt.Transcribe(ctx, p.path, cfg.Language)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Errorf("transcribe chunk %d: %w", p.index, err))
					return
				}
				results[p.index] = res
			}(p)
		}
		wg.Wait()
		if len(errs) > 0 {
			return types.Transcript{}, errs[0]
		}
	}

	return mergeChunks(plans, results, cfg.ChunkLength), nil
}

func planChunks(audioDur, chunkLen float64, workDir string) []chunkPlan {
	n := int(math.Ceil(audioDur / chunkLen))
	if n < 1 {
		n = 1
	}
	plans := make([]chunkPlan, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * chunkLen
		length := chunkLen
		if start+length > audioDur {
			length = audioDur - start
		}
		plans = append(plans, chunkPlan{
			index:  i,
			start:  start,
			length: length,
			path:   filepath.Join(workDir, fmt.Sprintf("chunk_%03d.wav", i)),
		})
	}
	return plans
}

// mergeChunks shifts every chunk-local timestamp by index*chunkLen. A
// chunk that came back without segment boundaries gets one synthesized
// segment spanning the whole chunk so no audio is silently dropped.
func mergeChunks(plans []chunkPlan, results []ports.SpeechResult, chunkLen float64) types.Transcript {
	var tr types.Transcript
	for i, res := range results {
		offset := float64(plans[i].index) * chunkLen

		if len(res.Segments) == 0 {
			tr.Segments = append(tr.Segments, types.Segment{
				Start: offset,
				End:   offset + plans[i].length,
				Text:  strings.TrimSpace(res.Text),
			})
		} else {
			for _, s := range res.Segments {
				tr.Segments = append(tr.Segments, types.Segment{
					Start:      s.Start + offset,
					End:        s.End + offset,
					Text:       strings.TrimSpace(s.Text),
					Confidence: s.Confidence,
				})
			}
		}
		if tr.Language == "" && res.Language != "" {
			tr.Language = res.Language
		}
	}

	sort.SliceStable(tr.Segments, func(i, j int) bool {
		return tr.Segments[i].Start < tr.Segments[j].Start
	})
	for _, s := range tr.Segments {
		if s.End > tr.Duration {
			tr.Duration = s.End
		}
	}
	return tr
}

func (c *Chunker) removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logf("cleanup: remove %s: %v", path, err)
	}
}
