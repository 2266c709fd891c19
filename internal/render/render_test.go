package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

func TestRenderBatch_BatchesOfFour(t *testing.T) {
	t.Parallel()

	// Each render blocks until its whole batch has started, so a
	// controller that ran renders sequentially would time out here.
	video := newFakeVideo(4, 4, 2)
	c := NewController(video, nil)

	segs := makeSegments(10)
	clips, err := c.RenderBatch(context.Background(), "job-1", "src.mp4", segs, testTranscript(), t.TempDir(), Options{BatchWidth: 4}, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(clips) != 10 {
		t.Fatalf("expected 10 clips, got %d", len(clips))
	}
	if video.calls != 10 {
		t.Fatalf("expected 10 renders, got %d", video.calls)
	}
	if video.maxInFlight != 4 {
		t.Fatalf("expected peak concurrency of exactly 4, saw %d", video.maxInFlight)
	}
}

func TestRenderBatch_PreservesSegmentOrder(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(3, 3)
	c := NewController(video, nil)

	segs := makeSegments(6)
	clips, err := c.RenderBatch(context.Background(), "job-1", "src.mp4", segs, testTranscript(), t.TempDir(), Options{BatchWidth: 3}, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i, clip := range clips {
		if clip.Segment.Start != segs[i].Start {
			t.Fatalf("clip %d does not map to input segment %d", i, i)
		}
		if clip.ID == "" {
			t.Fatalf("clip %d missing id", i)
		}
	}
}

func TestRenderBatch_OneFailureFailsStage(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(4, 1)
	video.failOnStart = 120 // the third segment
	c := NewController(video, nil)

	_, err := c.RenderBatch(context.Background(), "job-1", "src.mp4", makeSegments(5), testTranscript(), t.TempDir(), Options{BatchWidth: 4}, nil)
	if err == nil {
		t.Fatal("expected stage failure when one render fails")
	}
	if !strings.Contains(err.Error(), "render clip 3") {
		t.Fatalf("expected failing clip identified, got %v", err)
	}
}

func TestRenderBatch_ProgressInterpolatesAcrossWindow(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(4, 4, 2)
	c := NewController(video, nil)

	var mu sync.Mutex
	var events []types.ProgressEvent
	sink := ports.ProgressFunc(func(e types.ProgressEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	opts := Options{BatchWidth: 4, ProgressFrom: 55, ProgressTo: 85}
	if _, err := c.RenderBatch(context.Background(), "job-1", "src.mp4", makeSegments(10), testTranscript(), t.TempDir(), opts, sink); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected one progress event per batch, got %d", len(events))
	}
	want := []int{55, 67, 79}
	for i, e := range events {
		if e.Stage != types.StageRender {
			t.Fatalf("event %d has stage %q", i, e.Stage)
		}
		if e.Percent != want[i] {
			t.Fatalf("event %d percent = %d, want %d", i, e.Percent, want[i])
		}
	}
}

func TestRenderBatch_ThumbnailNearClipHead(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(2)
	c := NewController(video, nil)

	segs := []types.HighlightSegment{
		{Start: 0, End: 30},  // min(2, 15) = 2
		{Start: 60, End: 63}, // min(2, 1.5) = 1.5
	}
	if _, err := c.RenderBatch(context.Background(), "job-1", "src.mp4", segs, testTranscript(), t.TempDir(), Options{}, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	video.mu.Lock()
	defer video.mu.Unlock()
	if len(video.frameAts) != 2 {
		t.Fatalf("expected 2 thumbnails, got %d", len(video.frameAts))
	}
	seen := map[float64]bool{}
	for _, at := range video.frameAts {
		seen[at] = true
	}
	if !seen[2.0] || !seen[1.5] {
		t.Fatalf("unexpected thumbnail offsets %v", video.frameAts)
	}
}

func TestRenderOne_WritesCaptionTrack(t *testing.T) {
	t.Parallel()

	video := newFakeVideo(1)
	c := NewController(video, nil)

	dir := t.TempDir()
	seg := types.HighlightSegment{Start: 0, End: 20}
	_, err := c.RenderOne(context.Background(), "src.mp4", seg, testTranscript(), dir, "001", Options{Captions: true, Quality: HighQuality})
	if err != nil {
		t.Fatalf("render one: %v", err)
	}
	video.mu.Lock()
	defer video.mu.Unlock()
	if len(video.renderOpts) != 1 {
		t.Fatalf("expected 1 render, got %d", len(video.renderOpts))
	}
	got := video.renderOpts[0]
	if got.BurnASS == "" {
		t.Fatal("expected caption track path passed to transcoder")
	}
	if got.Preset != "slow" || got.CRF != 16 {
		t.Fatalf("expected high-quality settings, got preset=%q crf=%d", got.Preset, got.CRF)
	}
}

// fakeVideo is seeded with the expected batch sizes. Every RenderClip
// call blocks until its whole batch has arrived, which proves the
// controller starts a batch's renders concurrently and never overlaps
// batches.
type fakeVideo struct {
	mu          sync.Mutex
	expect      []int
	batchIdx    int
	arrived     int
	release     chan struct{}
	inFlight    int
	maxInFlight int
	calls       int
	renderOpts  []ports.RenderOpts
	frameAts    []float64
	failOnStart float64
}

func newFakeVideo(batchSizes ...int) *fakeVideo {
	return &fakeVideo{
		expect:      batchSizes,
		release:     make(chan struct{}),
		failOnStart: -1,
	}
}

func (f *fakeVideo) RenderClip(_ context.Context, _ string, start, _ float64, _ string, opts ports.RenderOpts) error {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.renderOpts = append(f.renderOpts, opts)
	fail := f.failOnStart == start

	if f.batchIdx >= len(f.expect) {
		f.mu.Unlock()
		return errors.New("render call past expected batches")
	}
	f.arrived++
	release := f.release
	if f.arrived == f.expect[f.batchIdx] {
		close(release)
		f.batchIdx++
		f.arrived = 0
		f.release = make(chan struct{})
	}
	f.mu.Unlock()

	select {
	case <-release:
	case <-time.After(5 * time.Second):
		return errors.New("batch never filled: renders not started concurrently")
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return errors.New("transcode exploded")
	}
	return nil
}

func (f *fakeVideo) ExtractFrame(_ context.Context, _ string, at float64, _ string) error {
	f.mu.Lock()
	f.frameAts = append(f.frameAts, at)
	f.mu.Unlock()
	return nil
}

func (f *fakeVideo) ExtractAudioMono16k(_ context.Context, _, _ string) error { return nil }

func (f *fakeVideo) SliceAudio(_ context.Context, _ string, _, _ float64, _ string) error {
	return nil
}

func (f *fakeVideo) ProbeDuration(_ context.Context, _ string) (float64, error) { return 0, nil }

func makeSegments(n int) []types.HighlightSegment {
	out := make([]types.HighlightSegment, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i * 60)
		out = append(out, types.HighlightSegment{Start: start, End: start + 30, Score: 1 - float64(i)/20})
	}
	return out
}

func testTranscript() types.Transcript {
	return types.Transcript{
		Duration: 600,
		Segments: []types.Segment{
			{Start: 0, End: 10, Text: "intro"},
			{Start: 10, End: 20, Text: "body"},
		},
	}
}
