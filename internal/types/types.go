package types

import "time"

// Status is the lifecycle of a Job. Terminal once Completed or Failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Stage is one phase of the pipeline state machine.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageTranscribe Stage = "transcribe"
	StageHighlights Stage = "highlights"
	StageRender     Stage = "render"
	StageFinalize   Stage = "finalize"
	StageExport     Stage = "export"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Job is one end-to-end request to turn a source video into highlight
// clips. Mutated exclusively by the orchestrator.
type Job struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	ClipCount   int       `json:"clip_count"`
	MinClipSec  float64   `json:"min_clip_sec"`
	MaxClipSec  float64   `json:"max_clip_sec"`
	AspectRatio string    `json:"aspect_ratio"`
	Captions    bool      `json:"captions"`
	Language    string    `json:"language,omitempty"`
	Stage       Stage     `json:"stage"`
	Progress    int       `json:"progress"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration"`
}

type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// BoundaryType names the signal that proposed a scene boundary.
type BoundaryType string

const (
	BoundarySilence     BoundaryType = "silence"
	BoundaryPunctuation BoundaryType = "punctuation"
	BoundarySemantic    BoundaryType = "semantic"
	BoundaryTopicChange BoundaryType = "topic_change"
)

type SceneBoundary struct {
	Timestamp  float64
	Type       BoundaryType
	Confidence float64
}

// DetectedScene is a candidate highlight window bounded by detected
// boundaries. Produced by the detector, consumed by the ranker.
type DetectedScene struct {
	Start         float64
	End           float64
	Duration      float64
	Confidence    float64
	BoundaryTypes []BoundaryType
	Text          string
	Segments      []Segment
}

// HighlightSegment is a scene selected and scored for extraction.
type HighlightSegment struct {
	Start    float64  `json:"start"`
	End      float64  `json:"end"`
	Score    float64  `json:"score"`
	Title    string   `json:"title"`
	Reason   string   `json:"reason,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// ClipTexts is the finalize-stage copy generated for one clip.
type ClipTexts struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
}

// RenderedClip is one finished artifact. Local paths are owned by the
// render stage until export uploads and discards them.
type RenderedClip struct {
	ID            string           `json:"id"`
	VideoPath     string           `json:"video_path"`
	ThumbnailPath string           `json:"thumbnail_path"`
	Duration      float64          `json:"duration"`
	Segment       HighlightSegment `json:"segment"`
	Texts         ClipTexts        `json:"texts,omitempty"`
	VideoURL      string           `json:"video_url,omitempty"`
	ThumbnailURL  string           `json:"thumbnail_url,omitempty"`
}

// ProgressEvent is published by the orchestrator before each stage
// transition and by stages that report fractional progress.
type ProgressEvent struct {
	JobID   string
	Stage   Stage
	Percent int
	Message string
}

// ReprocessBundle is cached after export so a later request can
// re-render a single clip without repeating the full pipeline.
type ReprocessBundle struct {
	JobID      string       `json:"job_id"`
	SourceKey  string       `json:"source_key"`
	Transcript Transcript   `json:"transcript"`
	Clips      []BundleClip `json:"clips"`
}

type BundleClip struct {
	ClipID string  `json:"clip_id"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Title  string  `json:"title"`
}

// SubtitlePrefs are per-clip caption overrides honored by re-render.
type SubtitlePrefs struct {
	Enabled  bool   `json:"enabled"`
	FontName string `json:"font_name,omitempty"`
	FontSize int    `json:"font_size,omitempty"`
}
