package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

func TestTranscribe_MergesChunkOffsets(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{duration: 650} // 3 chunks of 300s
	stt := &fakeSTT{
		results: map[int]ports.SpeechResult{
			0: {Language: "en", Segments: []types.Segment{
				{Start: 0, End: 5, Text: " hello "},
				{Start: 5, End: 299, Text: "first chunk"},
			}},
			1: {Segments: []types.Segment{
				{Start: 1, End: 250, Text: "second chunk"},
			}},
			2: {Segments: []types.Segment{
				{Start: 0, End: 50, Text: "third chunk"},
			}},
		},
	}
	c := New(video, stt, nil)

	tr, err := c.Transcribe(context.Background(), "in.mp4", t.TempDir(), Config{})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	if len(tr.Segments) != 4 {
		t.Fatalf("expected 4 merged segments, got %d", len(tr.Segments))
	}
	if tr.Segments[0].Text != "hello" {
		t.Fatalf("expected trimmed text, got %q", tr.Segments[0].Text)
	}
	if got := tr.Segments[2].Start; got != 301 {
		t.Fatalf("expected second-chunk segment offset to 301, got %.2f", got)
	}
	if got := tr.Segments[3].End; got != 650 {
		t.Fatalf("expected third-chunk segment end at 650, got %.2f", got)
	}
	for i := 1; i < len(tr.Segments); i++ {
		if tr.Segments[i].Start < tr.Segments[i-1].Start {
			t.Fatalf("segments not monotonic at index %d", i)
		}
	}
	if tr.Duration != 650 {
		t.Fatalf("expected duration = max segment end 650, got %.2f", tr.Duration)
	}
	if tr.Language != "en" {
		t.Fatalf("expected language from first chunk, got %q", tr.Language)
	}
}

func TestTranscribe_SynthesizesSegmentForEmptyChunk(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{duration: 450} // chunks: 300s + 150s
	stt := &fakeSTT{
		results: map[int]ports.SpeechResult{
			0: {Segments: []types.Segment{{Start: 0, End: 290, Text: "spoken"}}},
			1: {Text: "flat text only"}, // service returned no boundaries
		},
	}
	c := New(video, stt, nil)

	tr, err := c.Transcribe(context.Background(), "in.mp4", t.TempDir(), Config{})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	syn := tr.Segments[1]
	if syn.Start != 300 || syn.End != 450 {
		t.Fatalf("expected synthesized segment spanning [300, 450], got [%.2f, %.2f]", syn.Start, syn.End)
	}
	if syn.Text != "flat text only" {
		t.Fatalf("expected chunk text preserved, got %q", syn.Text)
	}
}

func TestTranscribe_ChunkFailureAbortsStage(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{duration: 900}
	stt := &fakeSTT{failAt: 1, results: map[int]ports.SpeechResult{
		0: {Segments: []types.Segment{{Start: 0, End: 10, Text: "a"}}},
		2: {Segments: []types.Segment{{Start: 0, End: 10, Text: "c"}}},
	}}
	c := New(video, stt, nil)

	_, err := c.Transcribe(context.Background(), "in.mp4", t.TempDir(), Config{})
	if err == nil {
		t.Fatal("expected a stage error when one chunk fails")
	}
	if !strings.Contains(err.Error(), "chunk 1") {
		t.Fatalf("expected chunk index in error, got %v", err)
	}
}

func TestTranscribe_CleansUpTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	video := &fakeVideoTool{duration: 650, materialize: true}
	stt := &fakeSTT{results: map[int]ports.SpeechResult{
		0: {Segments: []types.Segment{{Start: 0, End: 10, Text: "a"}}},
		1: {Segments: []types.Segment{{Start: 0, End: 10, Text: "b"}}},
		2: {Segments: []types.Segment{{Start: 0, End: 10, Text: "c"}}},
	}}
	c := New(video, stt, nil)

	if _, err := c.Transcribe(context.Background(), "in.mp4", dir, Config{}); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected work dir cleaned, found %d entries", len(entries))
	}
}

func TestTranscribe_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	video := &fakeVideoTool{duration: 3000} // 10 chunks
	stt := &fakeSTT{trackConcurrency: true, defaultResult: &ports.SpeechResult{
		Segments: []types.Segment{{Start: 0, End: 10, Text: "x"}},
	}}
	c := New(video, stt, nil)

	_, err := c.Transcribe(context.Background(), "in.mp4", t.TempDir(), Config{BatchWidth: 4})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if stt.calls != 10 {
		t.Fatalf("expected 10 chunk transcriptions, got %d", stt.calls)
	}
	if stt.maxInFlight > 4 {
		t.Fatalf("expected at most 4 concurrent transcriptions, saw %d", stt.maxInFlight)
	}
}

type fakeVideoTool struct {
	duration    float64
	materialize bool
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	if f.materialize {
		return os.WriteFile(outWav, []byte("wav"), 0o644)
	}
	return nil
}

func (f *fakeVideoTool) SliceAudio(_ context.Context, _ string, _, _ float64, outWav string) error {
	if f.materialize {
		return os.WriteFile(outWav, []byte("wav"), 0o644)
	}
	return nil
}

func (f *fakeVideoTool) RenderClip(_ context.Context, _ string, _, _ float64, _ string, _ ports.RenderOpts) error {
	return nil
}

func (f *fakeVideoTool) ExtractFrame(_ context.Context, _ string, _ float64, _ string) error {
	return nil
}

func (f *fakeVideoTool) ProbeDuration(_ context.Context, _ string) (float64, error) {
	return f.duration, nil
}

type fakeSTT struct {
	mu               sync.Mutex
	results          map[int]ports.SpeechResult
	defaultResult    *ports.SpeechResult
	failAt           int
	trackConcurrency bool
	inFlight         int
	maxInFlight      int
	calls            int
}

func (f *fakeSTT) Transcribe(_ context.Context, audioPath, _ string) (ports.SpeechResult, error) {
	idx := chunkIndexFromPath(audioPath)

	f.mu.Lock()
	f.calls++
	if f.trackConcurrency {
		f.inFlight++
		if f.inFlight > f.maxInFlight {
			f.maxInFlight = f.inFlight
		}
	}
	f.mu.Unlock()

	defer func() {
		if f.trackConcurrency {
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
		}
	}()

	if f.defaultResult != nil {
		return *f.defaultResult, nil
	}
	if f.failAt == idx && f.results[idx].Segments == nil {
		return ports.SpeechResult{}, errors.New("service unavailable")
	}
	return f.results[idx], nil
}

func chunkIndexFromPath(p string) int {
	base := filepath.Base(p)
	var idx int
	fmt.Sscanf(base, "chunk_%03d.wav", &idx)
	return idx
}
