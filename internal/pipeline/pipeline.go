// Package pipeline wires configuration and adapters into a runnable
// application.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/ports/adapters/ffmpeg"
	"github.com/clipwright/clipwright/internal/ports/adapters/gemini"
	"github.com/clipwright/clipwright/internal/ports/adapters/openrouter"
	"github.com/clipwright/clipwright/internal/ports/adapters/postgres"
	"github.com/clipwright/clipwright/internal/ports/adapters/rediscache"
	"github.com/clipwright/clipwright/internal/ports/adapters/s3store"
	"github.com/clipwright/clipwright/internal/ports/adapters/whisperapi"
	"github.com/clipwright/clipwright/internal/usecase"
)

type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Whisper  WhisperConfig  `yaml:"whisper"`
	Ranker   RankerConfig   `yaml:"ranker"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Watch    WatchConfig    `yaml:"watch"`
}

type PipelineConfig struct {
	WorkDir         string  `yaml:"work_dir"`
	ChunkLengthSec  float64 `yaml:"chunk_length_sec"`
	TranscribeWidth int     `yaml:"transcribe_width"`
	RenderWidth     int     `yaml:"render_width"`
	BundleTTLDays   int     `yaml:"bundle_ttl_days"`
}

type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

type WhisperConfig struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

type RankerConfig struct {
	APIKey       string   `yaml:"-"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

type GeminiConfig struct {
	APIKeys []string `yaml:"-"`
	Model   string   `yaml:"model"`
}

type DatabaseConfig struct {
	URL string `yaml:"-"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"public_url"`
	Secure    bool   `yaml:"secure"`
}

type WatchConfig struct {
	Dir           string `yaml:"dir"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Load reads a YAML config file, overlays secrets from the
// environment, and validates the result. An empty path yields an
// env-only config.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Secrets never live in the config file.
func (c *Config) applyEnv() {
	c.Whisper.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Ranker.APIKey = os.Getenv("OPENROUTER_API_KEY")
	c.Database.URL = os.Getenv("DATABASE_URL")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Storage.AccessKey = os.Getenv("S3_ACCESS_KEY")
	c.Storage.SecretKey = os.Getenv("S3_SECRET_KEY")
	if keys := os.Getenv("GEMINI_API_KEYS"); keys != "" {
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Gemini.APIKeys = append(c.Gemini.APIKeys, k)
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Pipeline.WorkDir == "" {
		c.Pipeline.WorkDir = ".cache/jobs"
	}
	if c.FFmpeg.FFmpegPath == "" {
		c.FFmpeg.FFmpegPath = "ffmpeg"
	}
	if c.FFmpeg.FFprobePath == "" {
		c.FFmpeg.FFprobePath = "ffprobe"
	}
	if c.Ranker.BaseURL == "" {
		c.Ranker.BaseURL = "https://openrouter.ai"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Watch.MaxConcurrent == 0 {
		c.Watch.MaxConcurrent = 2
	}
}

func (c Config) Validate() error {
	if c.Whisper.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Ranker.APIKey == "" {
		return errors.New("OPENROUTER_API_KEY is required")
	}
	if len(c.Gemini.APIKeys) == 0 {
		return errors.New("GEMINI_API_KEYS is required")
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint is required")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}
	return openrouter.ValidateBaseURL(c.Ranker.BaseURL, c.Ranker.AllowedHosts)
}

// App is the assembled application: the orchestrator plus the shared
// stores the CLI needs directly.
type App struct {
	Usecase *usecase.Usecase
	Jobs    ports.JobStore
	close   []func() error
}

func (a *App) Close() {
	for i := len(a.close) - 1; i >= 0; i-- {
		_ = a.close[i]()
	}
}

// Build connects all external services and assembles the orchestrator.
func Build(ctx context.Context, cfg Config, sink ports.ProgressSink, logf func(string, ...any)) (*App, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	db, err := postgres.NewConnection(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	app := &App{close: []func() error{db.Close}}

	jobs := postgres.NewStore(db)
	if err := jobs.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	cache, err := rediscache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.close = append(app.close, cache.Close)

	store, err := s3store.New(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.PublicURL, cfg.Storage.Secure)
	if err != nil {
		app.Close()
		return nil, err
	}

	logf("connected: db=%s redis=%s storage=%s/%s",
		postgres.MaskURL(cfg.Database.URL), cfg.Redis.Addr, cfg.Storage.Endpoint, cfg.Storage.Bucket)

	app.Jobs = jobs
	app.Usecase = usecase.New(usecase.Deps{
		Video:  ffmpeg.New(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath),
		STT:    whisperapi.New(cfg.Whisper.APIKey, cfg.Whisper.Model),
		Ranker: openrouter.New(cfg.Ranker.APIKey, cfg.Ranker.Model, cfg.Ranker.BaseURL),
		Texts:  gemini.New(cfg.Gemini.APIKeys, cfg.Gemini.Model, logf),
		Store:  store,
		Cache:  cache,
		Jobs:   jobs,
		Sink:   sink,
		Logf:   logf,
	}, usecase.Config{
		Bucket:          cfg.Storage.Bucket,
		WorkDir:         cfg.Pipeline.WorkDir,
		ChunkLengthSec:  cfg.Pipeline.ChunkLengthSec,
		TranscribeWidth: cfg.Pipeline.TranscribeWidth,
		RenderWidth:     cfg.Pipeline.RenderWidth,
		BundleTTL:       time.Duration(cfg.Pipeline.BundleTTLDays) * 24 * time.Hour,
	})
	return app, nil
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.SpeechToText = (*whisperapi.Adapter)(nil)
var _ ports.Ranker = (*openrouter.Adapter)(nil)
var _ ports.TextWriter = (*gemini.Adapter)(nil)
var _ ports.ObjectStore = (*s3store.Store)(nil)
var _ ports.Cache = (*rediscache.Cache)(nil)
var _ ports.JobStore = (*postgres.Store)(nil)
