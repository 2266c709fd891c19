package highlights

import (
	"context"
	"errors"
	"testing"

	"github.com/clipwright/clipwright/internal/types"
)

func TestSelect_UsesRankingPathWhenScenesSuffice(t *testing.T) {
	t.Parallel()

	scenes := makeScenes(10)
	r := &fakeRanker{rankSegs: makeSegments(8)}
	s := NewSelector(r, nil)

	got, _, err := s.Select(context.Background(), testTranscript(), scenes, Options{ClipCount: 8, MinSec: 10, MaxSec: 90})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if r.rankCalls != 1 || r.analyzeCalls != 0 {
		t.Fatalf("expected ranking path only, got rank=%d analyze=%d", r.rankCalls, r.analyzeCalls)
	}
	if len(got) != 8 {
		t.Fatalf("expected exactly 8 segments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("segments not sorted by descending score at %d", i)
		}
	}
}

func TestSelect_FallsBackWhenScenesUnderProduce(t *testing.T) {
	t.Parallel()

	scenes := makeScenes(3)
	r := &fakeRanker{analyzeSegs: makeSegments(8)}
	s := NewSelector(r, nil)

	got, _, err := s.Select(context.Background(), testTranscript(), scenes, Options{ClipCount: 8, MinSec: 10, MaxSec: 90})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if r.rankCalls != 0 {
		t.Fatalf("ranking path must not run with too few scenes, ran %d times", r.rankCalls)
	}
	if r.analyzeCalls != 1 {
		t.Fatalf("expected exactly one transcript analysis, got %d", r.analyzeCalls)
	}
	if len(got) != 8 {
		t.Fatalf("expected 8 segments, got %d", len(got))
	}
}

func TestSelect_FallsBackOncePrimaryFails(t *testing.T) {
	t.Parallel()

	r := &fakeRanker{rankErr: errors.New("malformed response"), analyzeSegs: makeSegments(4)}
	s := NewSelector(r, nil)

	got, _, err := s.Select(context.Background(), testTranscript(), makeScenes(6), Options{ClipCount: 4, MinSec: 10, MaxSec: 90})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if r.rankCalls != 1 || r.analyzeCalls != 1 {
		t.Fatalf("expected primary then fallback, got rank=%d analyze=%d", r.rankCalls, r.analyzeCalls)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(got))
	}
}

func TestSelect_FallbackFailureIsTerminal(t *testing.T) {
	t.Parallel()

	r := &fakeRanker{rankErr: errors.New("bad json"), analyzeErr: errors.New("also bad")}
	s := NewSelector(r, nil)

	if _, _, err := s.Select(context.Background(), testTranscript(), makeScenes(6), Options{ClipCount: 4, MinSec: 10, MaxSec: 90}); err == nil {
		t.Fatal("expected terminal error when fallback fails too")
	}
	if r.analyzeCalls != 1 {
		t.Fatalf("fallback must run exactly once, ran %d times", r.analyzeCalls)
	}
}

func TestSelect_ValidatesRankerOutput(t *testing.T) {
	t.Parallel()

	// The ranker returned an out-of-bounds and an overlong segment.
	r := &fakeRanker{rankSegs: []types.HighlightSegment{
		{Start: -3, End: 30, Score: 0.9},
		{Start: 0, End: 200, Score: 0.8, Title: "long"},
	}}
	s := NewSelector(r, nil)

	got, _, err := s.Select(context.Background(), testTranscript(), makeScenes(2), Options{ClipCount: 2, MinSec: 10, MaxSec: 90})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving segment, got %d", len(got))
	}
	if got[0].End != 90 {
		t.Fatalf("expected overlong segment truncated to 90, got %.2f", got[0].End)
	}
}

type fakeRanker struct {
	rankSegs     []types.HighlightSegment
	analyzeSegs  []types.HighlightSegment
	rankErr      error
	analyzeErr   error
	rankCalls    int
	analyzeCalls int
}

func (f *fakeRanker) RankScenes(_ context.Context, _ []types.DetectedScene, _ int, _, _ float64) ([]types.HighlightSegment, string, error) {
	f.rankCalls++
	return f.rankSegs, "ranked", f.rankErr
}

func (f *fakeRanker) AnalyzeTranscript(_ context.Context, _ types.Transcript, _ int, _, _ float64) ([]types.HighlightSegment, string, error) {
	f.analyzeCalls++
	return f.analyzeSegs, "analyzed", f.analyzeErr
}

func makeScenes(n int) []types.DetectedScene {
	out := make([]types.DetectedScene, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i * 60)
		out = append(out, types.DetectedScene{Start: start, End: start + 40, Duration: 40})
	}
	return out
}

func makeSegments(n int) []types.HighlightSegment {
	out := make([]types.HighlightSegment, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i * 60)
		out = append(out, types.HighlightSegment{Start: start, End: start + 40, Score: float64(n-i) / float64(n)})
	}
	return out
}

func testTranscript() types.Transcript {
	return types.Transcript{Duration: 600, Segments: []types.Segment{{Start: 0, End: 600, Text: "full talk"}}}
}
