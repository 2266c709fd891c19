package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipwright/clipwright/internal/pipeline"
	"github.com/clipwright/clipwright/internal/watch"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and process every new video dropped into it",
		RunE:  watchDir,
	}
	cmd.Flags().String("dir", "", "Directory to watch (overrides config)")
	cmd.Flags().Int("clips", 5, "Number of clips per video")
	cmd.Flags().Float64("min", 15, "Minimum clip duration in seconds")
	cmd.Flags().Float64("max", 60, "Maximum clip duration in seconds")
	cmd.Flags().String("aspect", "9:16", "Output aspect ratio (9:16, 1:1, 16:9)")
	cmd.Flags().Bool("captions", true, "Burn captions into clips")
	cmd.Flags().String("language", "", "Transcription language hint")
	return cmd
}

func watchDir(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := pipeline.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Watch.Dir = dir
	}
	if cfg.Watch.Dir == "" {
		return errors.New("watch directory is required (--dir or watch.dir in config)")
	}
	logf := logfFrom(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := pipeline.Build(ctx, cfg, progressPrinter(cmd), logf)
	if err != nil {
		return err
	}
	defer app.Close()

	handler := func(ctx context.Context, path string) error {
		job, err := newJob(cmd, path)
		if err != nil {
			return err
		}
		if err := app.Jobs.InsertJob(ctx, job); err != nil {
			return err
		}
		logf("job %s accepted for %s", job.ID, path)
		_, err = app.Usecase.Run(ctx, job)
		return err
	}

	w, err := watch.New(cfg.Watch.Dir, handler, logf, cfg.Watch.MaxConcurrent)
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
