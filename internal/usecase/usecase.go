// Package usecase sequences the highlight pipeline: ingest, transcribe,
// highlight selection, render, finalize, export. It is the only writer
// of job state; stages report progress through events that the
// orchestrator persists.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipwright/clipwright/internal/domain/highlights"
	"github.com/clipwright/clipwright/internal/domain/scenes"
	"github.com/clipwright/clipwright/internal/domain/subtitles"
	"github.com/clipwright/clipwright/internal/domain/transcribe"
	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/render"
	"github.com/clipwright/clipwright/internal/types"
)

// Stage progress windows. Each stage starts at its own mark; render
// interpolates inside its window per batch.
const (
	progressIngest     = 0
	progressTranscribe = 10
	progressHighlights = 35
	progressRender     = 55
	progressFinalize   = 85
	progressExport     = 92
	progressDone       = 100
)

const (
	defaultBundleTTL = 30 * 24 * time.Hour
	subsPrefsTTL     = 7 * 24 * time.Hour
)

type Deps struct {
	Video  ports.VideoTool
	STT    ports.SpeechToText
	Ranker ports.Ranker
	Texts  ports.TextWriter
	Store  ports.ObjectStore
	Cache  ports.Cache
	Jobs   ports.JobStore
	Sink   ports.ProgressSink
	Logf   func(format string, args ...any)
}

// Config carries per-deployment tuning; zero values fall back to the
// stage defaults.
type Config struct {
	Bucket          string
	WorkDir         string
	ChunkLengthSec  float64
	TranscribeWidth int
	RenderWidth     int
	Scenes          scenes.Config
	BundleTTL       time.Duration

	// HTTPClient fetches http(s) sources during ingest.
	HTTPClient *http.Client
}

type Usecase struct {
	d   Deps
	cfg Config
}

func New(d Deps, cfg Config) *Usecase {
	if d.Logf == nil {
		d.Logf = func(string, ...any) {}
	}
	if cfg.BundleTTL <= 0 {
		cfg.BundleTTL = defaultBundleTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Usecase{d: d, cfg: cfg}
}

type Result struct {
	Clips     []types.RenderedClip
	Reasoning string
}

// Run executes the whole pipeline for one job. The job row must exist
// (status queued); Run moves it to processing and leaves it completed
// or failed. Temporary artifacts are removed on every exit path;
// cleanup failures are logged and never mask the stage error.
func (u *Usecase) Run(ctx context.Context, job *types.Job) (Result, error) {
	workDir := filepath.Join(u.cfg.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, u.fail(ctx, job, types.StageIngest, fmt.Errorf("create work dir: %w", err))
	}
	defer u.cleanup(workDir)

	job.Status = types.StatusProcessing
	u.progress(ctx, job, types.StageIngest, progressIngest, "resolving source video")

	source, sourceKey, err := u.ingest(ctx, job, workDir)
	if err != nil {
		return Result{}, u.fail(ctx, job, types.StageIngest, err)
	}

	u.progress(ctx, job, types.StageTranscribe, progressTranscribe, "transcribing audio")
	chunker := transcribe.New(u.d.Video, u.d.STT, u.d.Logf)
	tr, err := chunker.Transcribe(ctx, source, workDir, transcribe.Config{
		ChunkLength: u.cfg.ChunkLengthSec,
		BatchWidth:  u.cfg.TranscribeWidth,
		Language:    job.Language,
	})
	if err != nil {
		return Result{}, u.fail(ctx, job, types.StageTranscribe, err)
	}

	u.progress(ctx, job, types.StageHighlights, progressHighlights, "selecting highlights")
	sceneCfg := u.cfg.Scenes
	sceneCfg.MinSceneDuration = job.MinClipSec
	sceneCfg.MaxSceneDuration = job.MaxClipSec
	if sceneCfg.TargetSceneCount < 2*job.ClipCount {
		// Keep the scene-ranking path reachable for large clip counts.
		sceneCfg.TargetSceneCount = 2 * job.ClipCount
	}
	detected := scenes.Detect(tr, sceneCfg)

	selector := highlights.NewSelector(u.d.Ranker, u.d.Logf)
	segs, reasoning, err := selector.Select(ctx, tr, detected, highlights.Options{
		ClipCount: job.ClipCount,
		MinSec:    job.MinClipSec,
		MaxSec:    job.MaxClipSec,
	})
	if err != nil {
		return Result{}, u.fail(ctx, job, types.StageHighlights, err)
	}

	u.progress(ctx, job, types.StageRender, progressRender, "rendering clips")
	renderDir := filepath.Join(workDir, "clips")
	controller := render.NewController(u.d.Video, u.d.Logf)
	clips, err := controller.RenderBatch(ctx, job.ID, source, segs, tr, renderDir, render.Options{
		Aspect:       job.AspectRatio,
		Captions:     job.Captions,
		BatchWidth:   u.cfg.RenderWidth,
		Quality:      render.StandardQuality,
		ProgressFrom: progressRender,
		ProgressTo:   progressFinalize,
	}, ports.ProgressFunc(func(e types.ProgressEvent) {
		u.progress(ctx, job, e.Stage, e.Percent, e.Message)
	}))
	if err != nil {
		return Result{}, u.fail(ctx, job, types.StageRender, err)
	}

	u.progress(ctx, job, types.StageFinalize, progressFinalize, "writing clip texts")
	for i := range clips {
		texts, err := u.d.Texts.ClipTexts(ctx, clipText(tr, clips[i].Segment), clips[i].Segment)
		if err != nil {
			return Result{}, u.fail(ctx, job, types.StageFinalize, err)
		}
		clips[i].Texts = texts
	}

	u.progress(ctx, job, types.StageExport, progressExport, "uploading clips")
	if err := u.export(ctx, job, sourceKey, tr, clips); err != nil {
		return Result{}, u.fail(ctx, job, types.StageExport, err)
	}

	job.Status = types.StatusCompleted
	u.progress(ctx, job, types.StageCompleted, progressDone, "done")
	return Result{Clips: clips, Reasoning: reasoning}, nil
}

// ingest resolves the job source to a local file and makes sure the
// original is retrievable from object storage for later re-renders.
func (u *Usecase) ingest(ctx context.Context, job *types.Job, workDir string) (local, sourceKey string, err error) {
	switch {
	case job.SourcePath != "":
		if _, err := os.Stat(job.SourcePath); err != nil {
			return "", "", fmt.Errorf("source file: %w", err)
		}
		key := sourceObjectKey(job.ID, filepath.Ext(job.SourcePath))
		if _, err := u.d.Store.Upload(ctx, u.cfg.Bucket, key, job.SourcePath, "video/mp4"); err != nil {
			return "", "", fmt.Errorf("archive source: %w", err)
		}
		return job.SourcePath, key, nil

	case strings.HasPrefix(job.SourceURL, "http://") || strings.HasPrefix(job.SourceURL, "https://"):
		local := filepath.Join(workDir, "source"+pathExt(job.SourceURL))
		if err := u.download(ctx, job.SourceURL, local); err != nil {
			return "", "", err
		}
		key := sourceObjectKey(job.ID, filepath.Ext(local))
		if _, err := u.d.Store.Upload(ctx, u.cfg.Bucket, key, local, "video/mp4"); err != nil {
			return "", "", fmt.Errorf("archive source: %w", err)
		}
		return local, key, nil

	case job.SourceURL != "":
		// Bare source descriptors are object-store keys.
		local := filepath.Join(workDir, "source"+pathExt(job.SourceURL))
		if err := u.d.Store.Download(ctx, u.cfg.Bucket, job.SourceURL, local); err != nil {
			return "", "", fmt.Errorf("fetch source: %w", err)
		}
		return local, job.SourceURL, nil

	default:
		return "", "", errors.New("job has no source")
	}
}

func (u *Usecase) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := u.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download source: status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download source: %w", err)
	}
	return f.Close()
}

// export uploads all artifacts, persists per-clip URLs, and caches the
// reprocess bundle so single clips can be re-rendered later.
func (u *Usecase) export(ctx context.Context, job *types.Job, sourceKey string, tr types.Transcript, clips []types.RenderedClip) error {
	bundle := types.ReprocessBundle{
		JobID:      job.ID,
		SourceKey:  sourceKey,
		Transcript: tr,
	}
	for i := range clips {
		videoKey := fmt.Sprintf("clips/%s/%s.mp4", job.ID, clips[i].ID)
		thumbKey := fmt.Sprintf("clips/%s/%s.jpg", job.ID, clips[i].ID)

		videoURL, err := u.d.Store.Upload(ctx, u.cfg.Bucket, videoKey, clips[i].VideoPath, "video/mp4")
		if err != nil {
			return fmt.Errorf("upload clip %s: %w", clips[i].ID, err)
		}
		thumbURL, err := u.d.Store.Upload(ctx, u.cfg.Bucket, thumbKey, clips[i].ThumbnailPath, "image/jpeg")
		if err != nil {
			return fmt.Errorf("upload thumbnail %s: %w", clips[i].ID, err)
		}
		clips[i].VideoURL = videoURL
		clips[i].ThumbnailURL = thumbURL

		if err := u.d.Jobs.UpsertClip(ctx, job.ID, clips[i]); err != nil {
			return err
		}

		bundle.Clips = append(bundle.Clips, types.BundleClip{
			ClipID: clips[i].ID,
			Start:  clips[i].Segment.Start,
			End:    clips[i].Segment.End,
			Title:  clips[i].Segment.Title,
		})
	}

	b, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode reprocess bundle: %w", err)
	}
	if err := u.d.Cache.Set(ctx, bundleKey(job.ID), b, u.cfg.BundleTTL); err != nil {
		return fmt.Errorf("cache reprocess bundle: %w", err)
	}
	return nil
}

// ReRenderInput requests one clip re-rendered from the original source
// with new caption preferences. When Subtitle is nil the cached
// per-clip preference override is used, if any.
type ReRenderInput struct {
	JobID    string
	ClipID   string
	Aspect   string
	Subtitle *types.SubtitlePrefs
}

// ReRenderClip re-renders a single exported clip at high quality
// without repeating the pipeline. It needs the reprocess bundle still
// cached and the original source still in object storage; a missing
// source is reported distinctly from other failures.
func (u *Usecase) ReRenderClip(ctx context.Context, in ReRenderInput) (types.RenderedClip, error) {
	b, err := u.d.Cache.Get(ctx, bundleKey(in.JobID))
	if errors.Is(err, ports.ErrCacheMiss) {
		return types.RenderedClip{}, fmt.Errorf("job %s: reprocess bundle expired or missing", in.JobID)
	}
	if err != nil {
		return types.RenderedClip{}, err
	}
	var bundle types.ReprocessBundle
	if err := json.Unmarshal(b, &bundle); err != nil {
		return types.RenderedClip{}, fmt.Errorf("decode reprocess bundle: %w", err)
	}

	var target *types.BundleClip
	for i := range bundle.Clips {
		if bundle.Clips[i].ClipID == in.ClipID {
			target = &bundle.Clips[i]
			break
		}
	}
	if target == nil {
		return types.RenderedClip{}, fmt.Errorf("job %s has no clip %s", in.JobID, in.ClipID)
	}

	prefs := in.Subtitle
	if prefs == nil {
		prefs = u.cachedSubtitlePrefs(ctx, in.JobID, in.ClipID)
	}

	workDir, err := os.MkdirTemp(u.cfg.WorkDir, "rerender-")
	if err != nil {
		return types.RenderedClip{}, err
	}
	defer u.cleanup(workDir)

	source := filepath.Join(workDir, "source"+pathExt(bundle.SourceKey))
	if err := u.d.Store.Download(ctx, u.cfg.Bucket, bundle.SourceKey, source); err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return types.RenderedClip{}, fmt.Errorf("source video for job %s is no longer available: %w", in.JobID, err)
		}
		return types.RenderedClip{}, err
	}

	seg := types.HighlightSegment{Start: target.Start, End: target.End, Title: target.Title}
	opts := render.Options{
		Aspect:  in.Aspect,
		Quality: render.HighQuality,
	}
	if prefs != nil && prefs.Enabled {
		opts.Captions = true
		opts.Subtitle = subtitles.Options{FontName: prefs.FontName, FontSize: prefs.FontSize}
	}

	controller := render.NewController(u.d.Video, u.d.Logf)
	clip, err := controller.RenderOne(ctx, source, seg, bundle.Transcript, workDir, in.ClipID, opts)
	if err != nil {
		return types.RenderedClip{}, fmt.Errorf("re-render clip %s: %w", in.ClipID, err)
	}
	clip.ID = in.ClipID

	videoKey := fmt.Sprintf("clips/%s/%s.mp4", in.JobID, in.ClipID)
	thumbKey := fmt.Sprintf("clips/%s/%s.jpg", in.JobID, in.ClipID)
	if clip.VideoURL, err = u.d.Store.Upload(ctx, u.cfg.Bucket, videoKey, clip.VideoPath, "video/mp4"); err != nil {
		return types.RenderedClip{}, fmt.Errorf("upload clip %s: %w", in.ClipID, err)
	}
	if clip.ThumbnailURL, err = u.d.Store.Upload(ctx, u.cfg.Bucket, thumbKey, clip.ThumbnailPath, "image/jpeg"); err != nil {
		return types.RenderedClip{}, fmt.Errorf("upload thumbnail %s: %w", in.ClipID, err)
	}
	if err := u.d.Jobs.UpsertClip(ctx, in.JobID, clip); err != nil {
		return types.RenderedClip{}, err
	}
	return clip, nil
}

// SetSubtitlePrefs stores a per-clip caption override picked up by the
// next re-render of that clip.
func (u *Usecase) SetSubtitlePrefs(ctx context.Context, jobID, clipID string, prefs types.SubtitlePrefs) error {
	b, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return u.d.Cache.Set(ctx, subsPrefsKey(jobID, clipID), b, subsPrefsTTL)
}

func (u *Usecase) cachedSubtitlePrefs(ctx context.Context, jobID, clipID string) *types.SubtitlePrefs {
	b, err := u.d.Cache.Get(ctx, subsPrefsKey(jobID, clipID))
	if err != nil {
		return nil
	}
	var prefs types.SubtitlePrefs
	if err := json.Unmarshal(b, &prefs); err != nil {
		u.d.Logf("usecase: drop malformed subtitle prefs for %s/%s: %v", jobID, clipID, err)
		return nil
	}
	return &prefs
}

// progress mutates the job, persists it, and publishes the event.
// Persistence failures are logged so a flaky store cannot kill a
// healthy pipeline mid-stage.
func (u *Usecase) progress(ctx context.Context, job *types.Job, stage types.Stage, percent int, message string) {
	job.Stage = stage
	job.Progress = percent
	job.UpdatedAt = time.Now().UTC()
	if err := u.d.Jobs.UpdateJob(ctx, job); err != nil {
		u.d.Logf("usecase: persist progress for job %s: %v", job.ID, err)
	}
	if u.d.Sink != nil {
		u.d.Sink.Publish(types.ProgressEvent{
			JobID:   job.ID,
			Stage:   stage,
			Percent: percent,
			Message: message,
		})
	}
}

// fail moves the job to its terminal failed state and returns the
// original stage error annotated with the stage name.
func (u *Usecase) fail(ctx context.Context, job *types.Job, stage types.Stage, err error) error {
	wrapped := fmt.Errorf("%s: %w", stage, err)
	job.Status = types.StatusFailed
	job.Error = wrapped.Error()
	u.progress(ctx, job, types.StageFailed, 0, "job failed: "+err.Error())
	return wrapped
}

func (u *Usecase) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		u.d.Logf("usecase: cleanup %s: %v", dir, err)
	}
}

// clipText flattens the transcript text overlapping [seg.Start, seg.End).
func clipText(tr types.Transcript, seg types.HighlightSegment) string {
	var parts []string
	for _, s := range tr.Segments {
		if s.End <= seg.Start || s.Start >= seg.End {
			continue
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func bundleKey(jobID string) string { return "bundle:" + jobID }

func subsPrefsKey(jobID, clipID string) string { return "subs:" + jobID + ":" + clipID }

func sourceObjectKey(jobID, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	return "sources/" + jobID + "/source" + ext
}

// pathExt is filepath.Ext over the last path element of a URL or key,
// ignoring any query string.
func pathExt(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if ext := filepath.Ext(p); ext != "" {
		return ext
	}
	return ".mp4"
}
