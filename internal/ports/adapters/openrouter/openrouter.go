package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clipwright/clipwright/internal/types"
)

// Returned when the service response lacks the required top-level
// array. Callers treat these as a malformed response, not a transport
// failure.
var (
	ErrMissingRankings = errors.New("openrouter: response missing rankings array")
	ErrMissingSegments = errors.New("openrouter: response missing segments array")
)

const (
	requestTimeout = 90 * time.Second

	systemPrompt = "You are a short-form video editor. Respond with strictly valid JSON only: no markdown, no code fences, no commentary outside the JSON object."
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

// RankScenes submits every detected scene in one request and asks the
// service for exactly clipCount picks. Returned scene indexes are
// mapped back to the source scene's start/end.
func (a *Adapter) RankScenes(
	ctx context.Context,
	scenes []types.DetectedScene,
	clipCount int,
	minSec, maxSec float64,
) ([]types.HighlightSegment, string, error) {
	if clipCount <= 0 || len(scenes) == 0 {
		return nil, "", fmt.Errorf("openrouter: nothing to rank")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pick exactly %d scenes from the candidates below to publish as standalone highlight clips.\n", clipCount)
	sb.WriteString(rankingCriteria)
	fmt.Fprintf(&sb, "\nEach pick's duration must stay between %.0f and %.0f seconds.\n", minSec, maxSec)
	sb.WriteString("Return JSON: {\"rankings\": [{\"scene_index\": int, \"score\": 0..1, \"title\": string, \"reason\": string, \"keywords\": [string]}], \"reasoning\": string}.\n\nCandidate scenes:\n")
	for i, sc := range scenes {
		fmt.Fprintf(&sb, "[%d] %.1fs-%.1fs (%.1fs, boundaries: %s)\n%s\n\n",
			i, sc.Start, sc.End, sc.Duration, boundaryList(sc.BoundaryTypes), sc.Text)
	}

	content, err := a.complete(ctx, sb.String())
	if err != nil {
		return nil, "", err
	}
	return parseRankings(content, scenes)
}

// AnalyzeTranscript is the fallback path: with no pre-segmented scenes
// to anchor on, the service picks time ranges directly from the
// flattened transcript and justifies them itself.
func (a *Adapter) AnalyzeTranscript(
	ctx context.Context,
	tr types.Transcript,
	clipCount int,
	minSec, maxSec float64,
) ([]types.HighlightSegment, string, error) {
	if clipCount <= 0 || len(tr.Segments) == 0 {
		return nil, "", fmt.Errorf("openrouter: nothing to analyze")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Find the %d best moments in this %.0f-second transcript to publish as standalone highlight clips.\n", clipCount, tr.Duration)
	sb.WriteString(rankingCriteria)
	fmt.Fprintf(&sb, "\nEach clip must run between %.0f and %.0f seconds. Pick start/end times that land on natural speech boundaries.\n", minSec, maxSec)
	sb.WriteString("Return JSON: {\"segments\": [{\"start_time\": seconds, \"end_time\": seconds, \"score\": 0..1, \"title\": string, \"reason\": string, \"keywords\": [string]}], \"reasoning\": string}.\n\nTranscript:\n")
	for _, s := range tr.Segments {
		fmt.Fprintf(&sb, "[%.1f-%.1f] %s\n", s.Start, s.End, s.Text)
	}

	content, err := a.complete(ctx, sb.String())
	if err != nil {
		return nil, "", err
	}
	return parseAnalysis(content)
}

// Selection criteria in priority order, shared by both paths.
const rankingCriteria = `Judge each candidate on, in priority order:
1. a strong opening hook in the first seconds
2. information density
3. a self-contained narrative arc
4. an emotional peak
5. topical diversity across your picks
6. clause-level clarity (never cut mid-sentence)
7. attention triggers: numbers, questions, lists
`

func (a *Adapter) complete(ctx context.Context, userPrompt string) (string, error) {
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: empty choices")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

type rankedItem struct {
	SceneIndex *int            `json:"scene_index"`
	StartTime  json.RawMessage `json:"start_time"`
	EndTime    json.RawMessage `json:"end_time"`
	Score      json.RawMessage `json:"score"`
	Title      json.RawMessage `json:"title"`
	Reason     json.RawMessage `json:"reason"`
	Keywords   json.RawMessage `json:"keywords"`
}

func parseRankings(content string, scenes []types.DetectedScene) ([]types.HighlightSegment, string, error) {
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, "", err
	}
	var body struct {
		Rankings  []rankedItem `json:"rankings"`
		Reasoning string       `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(clean), &body); err != nil {
		return nil, "", fmt.Errorf("openrouter: decode rankings: %w", err)
	}
	if body.Rankings == nil {
		return nil, "", ErrMissingRankings
	}

	out := make([]types.HighlightSegment, 0, len(body.Rankings))
	for i, item := range body.Rankings {
		if item.SceneIndex == nil || *item.SceneIndex < 0 || *item.SceneIndex >= len(scenes) {
			continue
		}
		src := scenes[*item.SceneIndex]
		out = append(out, types.HighlightSegment{
			Start:    src.Start,
			End:      src.End,
			Score:    coerceScore(item.Score),
			Title:    coerceTitle(item.Title, i),
			Reason:   coerceString(item.Reason, ""),
			Keywords: coerceKeywords(item.Keywords),
		})
	}
	return out, body.Reasoning, nil
}

func parseAnalysis(content string) ([]types.HighlightSegment, string, error) {
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, "", err
	}
	var body struct {
		Segments  []rankedItem `json:"segments"`
		Reasoning string       `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(clean), &body); err != nil {
		return nil, "", fmt.Errorf("openrouter: decode segments: %w", err)
	}
	if body.Segments == nil {
		return nil, "", ErrMissingSegments
	}

	out := make([]types.HighlightSegment, 0, len(body.Segments))
	for i, item := range body.Segments {
		start, okS := coerceNumber(item.StartTime)
		end, okE := coerceNumber(item.EndTime)
		if !okS || !okE {
			continue
		}
		out = append(out, types.HighlightSegment{
			Start:    start,
			End:      end,
			Score:    coerceScore(item.Score),
			Title:    coerceTitle(item.Title, i),
			Reason:   coerceString(item.Reason, ""),
			Keywords: coerceKeywords(item.Keywords),
		})
	}
	return out, body.Reasoning, nil
}

// coerceNumber accepts a JSON number or a numeric string.
func coerceNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// coerceScore defaults a missing or unreadable score to 0.5 and clamps
// into [0, 1].
func coerceScore(raw json.RawMessage) float64 {
	f, ok := coerceNumber(raw)
	if !ok {
		return 0.5
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func coerceTitle(raw json.RawMessage, idx int) string {
	if t := coerceString(raw, ""); t != "" {
		return t
	}
	return fmt.Sprintf("Highlight %d", idx+1)
}

func coerceString(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// coerceKeywords tolerates a missing or non-array value by returning an
// empty list; non-string entries are skipped.
func coerceKeywords(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boundaryList(bs []types.BoundaryType) string {
	if len(bs) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(bs))
	for _, b := range bs {
		parts = append(parts, string(b))
	}
	return strings.Join(parts, ", ")
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
