package highlights

import (
	"reflect"
	"testing"

	"github.com/clipwright/clipwright/internal/types"
)

func TestValidate_Rules(t *testing.T) {
	t.Parallel()

	const videoDur = 600.0
	cases := []struct {
		name string
		in   types.HighlightSegment
		want []types.HighlightSegment
	}{
		{
			name: "negative start dropped",
			in:   types.HighlightSegment{Start: -1, End: 30, Score: 0.9},
			want: nil,
		},
		{
			name: "end past video dropped",
			in:   types.HighlightSegment{Start: 590, End: 620, Score: 0.9},
			want: nil,
		},
		{
			name: "inverted range dropped",
			in:   types.HighlightSegment{Start: 50, End: 50, Score: 0.9},
			want: nil,
		},
		{
			name: "too short dropped",
			in:   types.HighlightSegment{Start: 10, End: 15, Score: 0.9},
			want: nil,
		},
		{
			name: "overlong truncated from the tail",
			in:   types.HighlightSegment{Start: 100, End: 220, Score: 0.9},
			want: []types.HighlightSegment{{Start: 100, End: 190, Score: 0.9}},
		},
		{
			name: "in-bounds kept as-is",
			in:   types.HighlightSegment{Start: 10, End: 50, Score: 0.4},
			want: []types.HighlightSegment{{Start: 10, End: 50, Score: 0.4}},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Validate([]types.HighlightSegment{tc.in}, videoDur, 10, 90)
			if len(got) == 0 && tc.want == nil {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValidate_SortsByDescendingScore(t *testing.T) {
	t.Parallel()

	in := []types.HighlightSegment{
		{Start: 0, End: 30, Score: 0.2},
		{Start: 100, End: 130, Score: 0.9},
		{Start: 200, End: 230, Score: 0.5},
	}
	got := Validate(in, 600, 10, 90)
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("not sorted by descending score at index %d", i)
		}
	}
}

func TestValidate_Idempotent(t *testing.T) {
	t.Parallel()

	in := []types.HighlightSegment{
		{Start: 0, End: 200, Score: 0.9, Title: "long"},
		{Start: 300, End: 340, Score: 0.5, Title: "ok"},
		{Start: -5, End: 40, Score: 0.7, Title: "bad"},
	}
	once := Validate(in, 600, 10, 90)
	twice := Validate(once, 600, 10, 90)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("validator not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestValidate_TruncationClampedToVideoEnd(t *testing.T) {
	t.Parallel()

	// Truncation target start+max would pass the video end; clamp there.
	in := []types.HighlightSegment{{Start: 550, End: 600, Score: 1, Title: "tail"}}
	got := Validate(in, 600, 10, 40)
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0].End != 590 {
		t.Fatalf("expected end truncated to 590, got %.2f", got[0].End)
	}
}
