// Package gemini writes publish-ready clip copy with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/clipwright/clipwright/internal/types"
)

const defaultModel = "gemini-2.0-flash"

const textsPrompt = `You write short-form video copy. Given a clip transcript and its
working title, produce JSON with exactly these keys:

{"title": "punchy title, max 60 chars", "description": "1-2 sentence description", "hashtags": ["#tag1", "#tag2", "#tag3"]}

Return ONLY the JSON object. No markdown, no commentary.

Working title: %s
Clip transcript:
---
%s
---`

type Adapter struct {
	apiKeys    []string
	currentKey int
	model      string
	logf       func(format string, args ...any)
}

// New builds an adapter over one or more API keys. Extra keys are spare
// capacity: the adapter rotates to the next key on 429 / quota errors.
func New(apiKeys []string, model string, logf func(format string, args ...any)) *Adapter {
	if model == "" {
		model = defaultModel
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Adapter{apiKeys: apiKeys, model: model, logf: logf}
}

// ClipTexts generates title, description and hashtags for one clip.
func (a *Adapter) ClipTexts(ctx context.Context, clipText string, seg types.HighlightSegment) (types.ClipTexts, error) {
	if len(a.apiKeys) == 0 {
		return types.ClipTexts{}, errors.New("gemini: no API keys configured")
	}

	prompt := fmt.Sprintf(textsPrompt, seg.Title, clipText)

	var lastErr error
	for range a.apiKeys {
		key := a.apiKeys[a.currentKey]

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			a.rotateKey()
			continue
		}

		result, err := client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
		if err != nil {
			if isQuotaError(err) {
				a.logf("gemini key %d rate limited, rotating", a.currentKey+1)
				a.rotateKey()
				lastErr = err
				continue
			}
			return types.ClipTexts{}, fmt.Errorf("generate content: %w", err)
		}

		text := responseText(result)
		if text == "" {
			return types.ClipTexts{}, errors.New("gemini: empty response")
		}
		return parseClipTexts(text, seg)
	}

	return types.ClipTexts{}, fmt.Errorf("gemini: all API keys exhausted: %w", lastErr)
}

func (a *Adapter) rotateKey() {
	a.currentKey = (a.currentKey + 1) % len(a.apiKeys)
}

func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// parseClipTexts decodes the model's JSON, tolerating markdown fences.
// A missing or empty title falls back to the segment's working title.
func parseClipTexts(text string, seg types.HighlightSegment) (types.ClipTexts, error) {
	clean := stripFences(text)

	var body struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Hashtags    []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(clean), &body); err != nil {
		return types.ClipTexts{}, fmt.Errorf("gemini: decode texts: %w", err)
	}

	out := types.ClipTexts{
		Title:       strings.TrimSpace(body.Title),
		Description: strings.TrimSpace(body.Description),
	}
	if out.Title == "" {
		out.Title = seg.Title
	}
	for _, h := range body.Hashtags {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		out.Hashtags = append(out.Hashtags, h)
	}
	return out, nil
}

func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	if start, end := strings.Index(t, "{"), strings.LastIndex(t, "}"); start >= 0 && end > start {
		return t[start : end+1]
	}
	return t
}
