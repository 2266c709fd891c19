// Package postgres persists job and clip records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/clipwright/clipwright/internal/types"
)

// NewConnection opens and verifies a database connection.
func NewConnection(url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the jobs and clips tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			source_url   TEXT NOT NULL DEFAULT '',
			source_path  TEXT NOT NULL DEFAULT '',
			clip_count   INT NOT NULL,
			min_clip_sec DOUBLE PRECISION NOT NULL,
			max_clip_sec DOUBLE PRECISION NOT NULL,
			aspect_ratio TEXT NOT NULL,
			captions     BOOLEAN NOT NULL,
			language     TEXT NOT NULL DEFAULT '',
			stage        TEXT NOT NULL,
			progress     DOUBLE PRECISION NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS clips (
			id             TEXT PRIMARY KEY,
			job_id         TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			video_path     TEXT NOT NULL DEFAULT '',
			thumbnail_path TEXT NOT NULL DEFAULT '',
			video_url      TEXT NOT NULL DEFAULT '',
			thumbnail_url  TEXT NOT NULL DEFAULT '',
			start_sec      DOUBLE PRECISION NOT NULL,
			end_sec        DOUBLE PRECISION NOT NULL,
			score          DOUBLE PRECISION NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			description    TEXT NOT NULL DEFAULT '',
			hashtags       TEXT NOT NULL DEFAULT ''
		);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) InsertJob(ctx context.Context, job *types.Job) error {
	const query = `
		INSERT INTO jobs (id, source_url, source_path, clip_count, min_clip_sec, max_clip_sec,
			aspect_ratio, captions, language, stage, progress, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.SourceURL, job.SourcePath, job.ClipCount, job.MinClipSec, job.MaxClipSec,
		job.AspectRatio, job.Captions, job.Language, job.Stage, job.Progress, job.Status,
		job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job *types.Job) error {
	const query = `
		UPDATE jobs
		SET stage = $2, progress = $3, status = $4, error = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		job.ID, job.Stage, job.Progress, job.Status, job.Error, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update job %s: no such job", job.ID)
	}
	return nil
}

func (s *Store) UpsertClip(ctx context.Context, jobID string, clip types.RenderedClip) error {
	const query = `
		INSERT INTO clips (id, job_id, video_path, thumbnail_path, video_url, thumbnail_url,
			start_sec, end_sec, score, title, description, hashtags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			video_path = EXCLUDED.video_path,
			thumbnail_path = EXCLUDED.thumbnail_path,
			video_url = EXCLUDED.video_url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			start_sec = EXCLUDED.start_sec,
			end_sec = EXCLUDED.end_sec,
			score = EXCLUDED.score,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			hashtags = EXCLUDED.hashtags
	`
	_, err := s.db.ExecContext(ctx, query,
		clip.ID, jobID, clip.VideoPath, clip.ThumbnailPath, clip.VideoURL, clip.ThumbnailURL,
		clip.Segment.Start, clip.Segment.End, clip.Segment.Score,
		clip.Texts.Title, clip.Texts.Description, joinHashtags(clip.Texts.Hashtags),
	)
	if err != nil {
		return fmt.Errorf("upsert clip %s: %w", clip.ID, err)
	}
	return nil
}

func joinHashtags(tags []string) string {
	return strings.Join(tags, " ")
}

// MaskURL hides credentials in a connection URL for logging.
func MaskURL(url string) string {
	if url == "" {
		return ""
	}
	return "postgres://[masked]@[masked]"
}
