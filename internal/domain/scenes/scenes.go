package scenes

import (
	"sort"
	"strings"

	"github.com/clipwright/clipwright/internal/types"
)

// Config tunes scene detection. Zero values fall back to defaults in
// Detect, so callers can set only what they care about.
type Config struct {
	MinSceneDuration float64
	MaxSceneDuration float64
	TargetSceneCount int
	MinSilence       float64
	MergeWindow      float64
	Padding          float64
}

const (
	defaultMinScene    = 10.0
	defaultMaxScene    = 90.0
	defaultTargetCount = 10
	defaultMinSilence  = 1.0
	defaultMergeWindow = 5.0
	defaultPadding     = 0.4

	// Raw boundary pairs slightly over the max are still considered,
	// since truncation downstream can salvage them. Hard cap at 1.5x.
	rawDurationSlack = 1.5
)

func (c Config) withDefaults() Config {
	if c.MinSceneDuration <= 0 {
		c.MinSceneDuration = defaultMinScene
	}
	if c.MaxSceneDuration <= 0 {
		c.MaxSceneDuration = defaultMaxScene
	}
	if c.TargetSceneCount <= 0 {
		c.TargetSceneCount = defaultTargetCount
	}
	if c.MinSilence <= 0 {
		c.MinSilence = defaultMinSilence
	}
	if c.MergeWindow <= 0 {
		c.MergeWindow = defaultMergeWindow
	}
	if c.Padding < 0 {
		c.Padding = 0
	} else if c.Padding == 0 {
		c.Padding = defaultPadding
	}
	return c
}

// Detect scans a transcript and proposes candidate highlight scenes from
// three independent boundary signals: silence gaps, sentence
// punctuation, and lexical/topical drift. Output is capped at
// TargetSceneCount and sorted chronologically.
func Detect(tr types.Transcript, cfg Config) []types.DetectedScene {
	cfg = cfg.withDefaults()
	if len(tr.Segments) == 0 {
		return nil
	}

	var all []types.SceneBoundary
	all = append(all, detectSilenceBoundaries(tr.Segments, cfg.MinSilence)...)
	all = append(all, detectPunctuationBoundaries(tr.Segments)...)
	all = append(all, detectSemanticBoundaries(tr.Segments)...)

	merged := mergeBoundaries(all, cfg.MergeWindow)
	scenes := buildScenes(tr, merged, cfg)

	// Keep the most confident scenes, then restore timeline order so
	// downstream ranking sees them chronologically.
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].Confidence > scenes[j].Confidence })
	if len(scenes) > cfg.TargetSceneCount {
		scenes = scenes[:cfg.TargetSceneCount]
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Start < scenes[j].Start })
	return scenes
}

func buildScenes(tr types.Transcript, bounds []types.SceneBoundary, cfg Config) []types.DetectedScene {
	var out []types.DetectedScene
	for i := 0; i+1 < len(bounds); i++ {
		raw := bounds[i+1].Timestamp - bounds[i].Timestamp
		if raw < cfg.MinSceneDuration || raw > rawDurationSlack*cfg.MaxSceneDuration {
			continue
		}
		sc, ok := makeScene(tr, bounds[i].Timestamp, bounds[i+1].Timestamp, cfg,
			(bounds[i].Confidence+bounds[i+1].Confidence)/2,
			[]types.BoundaryType{bounds[i].Type, bounds[i+1].Type})
		if !ok {
			continue
		}
		out = append(out, sc)
	}

	// Trailing scene: everything after the last boundary, if enough of
	// the transcript remains.
	if n := len(bounds); n > 0 {
		last := bounds[n-1]
		if tr.Duration-last.Timestamp >= cfg.MinSceneDuration {
			sc, ok := makeScene(tr, last.Timestamp, tr.Duration, cfg,
				last.Confidence, []types.BoundaryType{last.Type})
			if ok {
				out = append(out, sc)
			}
		}
	}
	return out
}

func makeScene(tr types.Transcript, from, to float64, cfg Config, conf float64, btypes []types.BoundaryType) (types.DetectedScene, bool) {
	start := clamp(from-cfg.Padding, 0, tr.Duration)
	end := clamp(to+cfg.Padding, 0, tr.Duration)
	dur := end - start
	if dur > cfg.MaxSceneDuration {
		return types.DetectedScene{}, false
	}
	if dur < cfg.MinSceneDuration {
		return types.DetectedScene{}, false
	}

	var (
		segs  []types.Segment
		texts []string
	)
	for _, s := range tr.Segments {
		if s.Start < start || s.End > end {
			continue
		}
		segs = append(segs, s)
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}

	return types.DetectedScene{
		Start:         start,
		End:           end,
		Duration:      dur,
		Confidence:    conf,
		BoundaryTypes: btypes,
		Text:          strings.Join(texts, " "),
		Segments:      segs,
	}, true
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
