// Package whisperapi transcribes audio through the hosted Whisper API.
package whisperapi

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

const defaultModel = openai.Whisper1

type Adapter struct {
	client *openai.Client
	model  string
}

// New builds an adapter for the given API key. An empty model selects
// whisper-1.
func New(apiKey, model string) *Adapter {
	if model == "" {
		model = defaultModel
	}
	return &Adapter{client: openai.NewClient(apiKey), model: model}
}

// Transcribe sends one audio file and returns segment-level timestamps.
// Timestamps are local to the file; callers offset them when the file is
// a slice of a longer recording.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, language string) (ports.SpeechResult, error) {
	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    a.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
	})
	if err != nil {
		return ports.SpeechResult{}, fmt.Errorf("whisper transcription failed: %w", err)
	}

	segs := make([]types.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segs = append(segs, types.Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       text,
			Confidence: confidenceFromLogprob(s.AvgLogprob),
		})
	}

	return ports.SpeechResult{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Segments: segs,
	}, nil
}

// confidenceFromLogprob maps the average token logprob onto [0, 1].
// Logprobs near 0 mean the model was sure; -1 and below is noise.
func confidenceFromLogprob(lp float64) float64 {
	c := 1 + lp
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
