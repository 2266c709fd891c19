package highlights

import (
	"sort"

	"github.com/clipwright/clipwright/internal/types"
)

// Validate enforces duration bounds on ranked segments. Segments that
// fall outside the video or below the minimum are dropped; overlong
// segments are truncated from the tail so the opening hook survives.
// The result is sorted by descending score. Validate is idempotent:
// re-running it on its own output changes nothing.
func Validate(segs []types.HighlightSegment, videoDuration, minSec, maxSec float64) []types.HighlightSegment {
	out := make([]types.HighlightSegment, 0, len(segs))
	for _, seg := range segs {
		if seg.Start < 0 || seg.End > videoDuration || seg.Start >= seg.End {
			continue
		}
		if seg.End-seg.Start < minSec {
			continue
		}
		if maxSec > 0 && seg.End-seg.Start > maxSec {
			end := seg.Start + maxSec
			if end > videoDuration {
				end = videoDuration
			}
			seg.End = end
		}
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
