package gemini

import (
	"testing"

	"github.com/clipwright/clipwright/internal/types"
)

func TestParseClipTexts(t *testing.T) {
	t.Parallel()

	seg := types.HighlightSegment{Title: "Working title"}

	got, err := parseClipTexts(`{"title": "Real title", "description": "A hook.", "hashtags": ["#go", "shorts", " "]}`, seg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Title != "Real title" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Description != "A hook." {
		t.Fatalf("description = %q", got.Description)
	}
	if len(got.Hashtags) != 2 || got.Hashtags[0] != "#go" || got.Hashtags[1] != "#shorts" {
		t.Fatalf("hashtags = %v", got.Hashtags)
	}
}

func TestParseClipTexts_FencedAndTitleFallback(t *testing.T) {
	t.Parallel()

	seg := types.HighlightSegment{Title: "Working title"}

	got, err := parseClipTexts("```json\n{\"title\": \"\", \"description\": \"d\", \"hashtags\": []}\n```", seg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Title != "Working title" {
		t.Fatalf("expected segment title fallback, got %q", got.Title)
	}
}

func TestParseClipTexts_RejectsNonJSON(t *testing.T) {
	t.Parallel()

	if _, err := parseClipTexts("sorry, I cannot help with that", types.HighlightSegment{}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestIsQuotaError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg  string
		want bool
	}{
		{"googleapi: Error 429: rate limit", true},
		{"rpc error: RESOURCE_EXHAUSTED", true},
		{"quota exceeded for project", true},
		{"connection refused", false},
	}
	for _, c := range cases {
		if got := isQuotaError(errMsg(c.msg)); got != c.want {
			t.Errorf("isQuotaError(%q) = %v", c.msg, got)
		}
	}
}

type errMsg string

func (e errMsg) Error() string { return string(e) }
