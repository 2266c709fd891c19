// Package highlights owns highlight selection policy: choosing between
// the scene-ranking path and the transcript-analysis fallback, and
// validating whatever the ranking service returned.
package highlights

import (
	"context"
	"fmt"

	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

type Options struct {
	ClipCount int
	MinSec    float64
	MaxSec    float64
}

type Selector struct {
	ranker ports.Ranker
	logf   func(format string, args ...any)
}

func NewSelector(ranker ports.Ranker, logf func(string, ...any)) *Selector {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Selector{ranker: ranker, logf: logf}
}

// Select returns validated highlight segments sorted by descending
// score, plus the service's reasoning string.
//
// The primary path ranks pre-detected scenes. When scene detection
// under-produced (fewer scenes than requested clips) or the primary
// path fails, the fallback asks the service to pick time ranges
// directly from the flattened transcript. The fallback runs at most
// once; its failure is terminal.
func (s *Selector) Select(ctx context.Context, tr types.Transcript, scenes []types.DetectedScene, opt Options) ([]types.HighlightSegment, string, error) {
	if opt.ClipCount <= 0 {
		return nil, "", fmt.Errorf("clip count must be > 0")
	}

	var (
		segs      []types.HighlightSegment
		reasoning string
		err       error
	)
	if len(scenes) >= opt.ClipCount {
		segs, reasoning, err = s.ranker.RankScenes(ctx, scenes, opt.ClipCount, opt.MinSec, opt.MaxSec)
		if err != nil {
			s.logf("highlights: scene ranking failed, falling back to transcript analysis: %v", err)
			segs, reasoning, err = s.ranker.AnalyzeTranscript(ctx, tr, opt.ClipCount, opt.MinSec, opt.MaxSec)
		}
	} else {
		s.logf("highlights: %d scenes for %d clips, using transcript analysis", len(scenes), opt.ClipCount)
		segs, reasoning, err = s.ranker.AnalyzeTranscript(ctx, tr, opt.ClipCount, opt.MinSec, opt.MaxSec)
	}
	if err != nil {
		return nil, "", fmt.Errorf("rank highlights: %w", err)
	}

	valid := Validate(segs, tr.Duration, opt.MinSec, opt.MaxSec)
	if len(valid) == 0 {
		return nil, "", fmt.Errorf("no valid highlight segments after validation (%d returned)", len(segs))
	}
	if len(valid) > opt.ClipCount {
		valid = valid[:opt.ClipCount]
	}
	return valid, reasoning, nil
}
