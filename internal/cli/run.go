package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clipwright/clipwright/internal/pipeline"
	"github.com/clipwright/clipwright/internal/ports"
	"github.com/clipwright/clipwright/internal/types"
)

const jobTimeout = 3 * time.Hour

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Process one video into highlight clips",
		Long:  "Source is a local file, an http(s) URL, or an object-store key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, args[0])
		},
	}
	cmd.Flags().Int("clips", 5, "Number of clips to produce")
	cmd.Flags().Float64("min", 15, "Minimum clip duration in seconds")
	cmd.Flags().Float64("max", 60, "Maximum clip duration in seconds")
	cmd.Flags().String("aspect", "9:16", "Output aspect ratio (9:16, 1:1, 16:9)")
	cmd.Flags().Bool("captions", true, "Burn captions into clips")
	cmd.Flags().String("language", "", "Transcription language hint")
	return cmd
}

func runJob(cmd *cobra.Command, source string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := pipeline.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logf := logfFrom(cmd)

	ctx, cancel := context.WithTimeout(cmd.Context(), jobTimeout)
	defer cancel()

	app, err := pipeline.Build(ctx, cfg, progressPrinter(cmd), logf)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := newJob(cmd, source)
	if err != nil {
		return err
	}
	if err := app.Jobs.InsertJob(ctx, job); err != nil {
		return err
	}
	logf("job %s accepted", job.ID)

	res, err := app.Usecase.Run(ctx, job)
	if err != nil {
		return err
	}

	for _, c := range res.Clips {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %7.1fs  %s\n", c.ID, c.Duration, c.VideoURL)
	}
	logf("job %s completed with %d clips", job.ID, len(res.Clips))
	return nil
}

func newJob(cmd *cobra.Command, source string) (*types.Job, error) {
	clips, _ := cmd.Flags().GetInt("clips")
	minSec, _ := cmd.Flags().GetFloat64("min")
	maxSec, _ := cmd.Flags().GetFloat64("max")
	aspect, _ := cmd.Flags().GetString("aspect")
	captions, _ := cmd.Flags().GetBool("captions")
	language, _ := cmd.Flags().GetString("language")

	if clips <= 0 {
		return nil, errors.New("clips must be > 0")
	}
	if minSec <= 0 || maxSec <= 0 || minSec > maxSec {
		return nil, errors.New("clip duration bounds must satisfy 0 < min <= max")
	}
	switch aspect {
	case "9:16", "1:1", "16:9":
	default:
		return nil, fmt.Errorf("unsupported aspect ratio %q", aspect)
	}

	now := time.Now().UTC()
	job := &types.Job{
		ID:          uuid.NewString(),
		ClipCount:   clips,
		MinClipSec:  minSec,
		MaxClipSec:  maxSec,
		AspectRatio: aspect,
		Captions:    captions,
		Language:    language,
		Stage:       types.StageIngest,
		Status:      types.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		job.SourceURL = source
		return job, nil
	}
	if abs, err := filepath.Abs(source); err == nil && fileExists(abs) {
		job.SourcePath = abs
		return job, nil
	}
	// Not a local file: treat as object-store key.
	job.SourceURL = source
	return job, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func progressPrinter(cmd *cobra.Command) ports.ProgressSink {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return nil
	}
	return ports.ProgressFunc(func(e types.ProgressEvent) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %-10s %s\n", e.Percent, e.Stage, e.Message)
	})
}
