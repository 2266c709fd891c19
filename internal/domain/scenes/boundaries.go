package scenes

import (
	"sort"
	"strings"

	"github.com/clipwright/clipwright/internal/types"
)

const (
	punctuationEndConfidence = 0.7
	punctuationMidConfidence = 0.6
	transitionCueConfidence  = 0.75
	topicChangeConfidence    = 0.65
	topicOverlapThreshold    = 0.3
	topicMinContentWords     = 5
	topicLookbackSegments    = 3
	contentWordMinLen        = 5
	silenceConfidenceFullGap = 3.0
	sentenceFinalPunctuation = ".!?…"
)

// Spoken discourse markers that tend to open a new thought. A segment
// starting with one of these is a semantic boundary hypothesis.
var transitionCues = []string{
	"now",
	"but",
	"however",
	"another point",
	"anyway",
	"moving on",
	"next",
	"so here's",
	"speaking of",
	"on the other hand",
	"let's talk about",
	"the thing is",
}

func detectSilenceBoundaries(segs []types.Segment, minSilence float64) []types.SceneBoundary {
	var out []types.SceneBoundary
	for i := 1; i < len(segs); i++ {
		gap := segs[i].Start - segs[i-1].End
		if gap < minSilence {
			continue
		}
		conf := gap / silenceConfidenceFullGap
		if conf > 1.0 {
			conf = 1.0
		}
		out = append(out, types.SceneBoundary{
			Timestamp:  segs[i-1].End + gap/2,
			Type:       types.BoundarySilence,
			Confidence: conf,
		})
	}
	return out
}

func detectPunctuationBoundaries(segs []types.Segment) []types.SceneBoundary {
	var out []types.SceneBoundary
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if endsSentence(text) {
			out = append(out, types.SceneBoundary{
				Timestamp:  s.End,
				Type:       types.BoundaryPunctuation,
				Confidence: punctuationEndConfidence,
			})
		}
		// Mid-segment sentence breaks get a timestamp interpolated by
		// word-count ratio since per-word timing is not available here.
		words := strings.Fields(text)
		if len(words) < 2 {
			continue
		}
		for i := 0; i < len(words)-1; i++ {
			if !endsSentence(words[i]) {
				continue
			}
			ratio := float64(i+1) / float64(len(words))
			out = append(out, types.SceneBoundary{
				Timestamp:  s.Start + ratio*(s.End-s.Start),
				Type:       types.BoundaryPunctuation,
				Confidence: punctuationMidConfidence,
			})
		}
	}
	return out
}

func detectSemanticBoundaries(segs []types.Segment) []types.SceneBoundary {
	var out []types.SceneBoundary
	for i, s := range segs {
		lower := strings.ToLower(strings.TrimSpace(s.Text))
		if lower == "" {
			continue
		}
		for _, cue := range transitionCues {
			if strings.HasPrefix(lower, cue) {
				out = append(out, types.SceneBoundary{
					Timestamp:  s.Start,
					Type:       types.BoundarySemantic,
					Confidence: transitionCueConfidence,
				})
				break
			}
		}
		if b, ok := topicChangeBoundary(segs, i); ok {
			out = append(out, b)
		}
	}
	return out
}

// topicChangeBoundary compares the current segment's content words
// against the union of the previous three segments'. A low overlap over
// enough qualifying words suggests the speaker moved to a new topic.
func topicChangeBoundary(segs []types.Segment, i int) (types.SceneBoundary, bool) {
	if i < topicLookbackSegments {
		return types.SceneBoundary{}, false
	}
	cur := contentWords(segs[i].Text)
	if len(cur) < topicMinContentWords {
		return types.SceneBoundary{}, false
	}
	prev := make(map[string]struct{})
	for j := i - topicLookbackSegments; j < i; j++ {
		for w := range contentWords(segs[j].Text) {
			prev[w] = struct{}{}
		}
	}
	if len(prev) == 0 {
		return types.SceneBoundary{}, false
	}
	overlap := 0
	for w := range cur {
		if _, ok := prev[w]; ok {
			overlap++
		}
	}
	if float64(overlap)/float64(len(cur)) >= topicOverlapThreshold {
		return types.SceneBoundary{}, false
	}
	return types.SceneBoundary{
		Timestamp:  segs[i].Start,
		Type:       types.BoundaryTopicChange,
		Confidence: topicChangeConfidence,
	}, true
}

func contentWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?…;:\"'()[]")
		if len([]rune(w)) >= contentWordMinLen {
			out[w] = struct{}{}
		}
	}
	return out
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	r := []rune(s)
	return strings.ContainsRune(sentenceFinalPunctuation, r[len(r)-1])
}

// mergeBoundaries sorts by timestamp and collapses any pair closer than
// window seconds, keeping the higher-confidence boundary.
func mergeBoundaries(bs []types.SceneBoundary, window float64) []types.SceneBoundary {
	if len(bs) == 0 {
		return nil
	}
	sorted := make([]types.SceneBoundary, len(bs))
	copy(sorted, bs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	out := []types.SceneBoundary{sorted[0]}
	for _, b := range sorted[1:] {
		last := &out[len(out)-1]
		if b.Timestamp-last.Timestamp < window {
			if b.Confidence > last.Confidence {
				*last = b
			}
			continue
		}
		out = append(out, b)
	}
	return out
}
