package whisperapi

import "testing"

func TestConfidenceFromLogprob(t *testing.T) {
	t.Parallel()

	cases := []struct {
		lp   float64
		want float64
	}{
		{0, 1},
		{-0.25, 0.75},
		{-1, 0},
		{-3.5, 0},
		{0.2, 1},
	}
	for _, c := range cases {
		if got := confidenceFromLogprob(c.lp); got != c.want {
			t.Errorf("confidenceFromLogprob(%v) = %v, want %v", c.lp, got, c.want)
		}
	}
}
