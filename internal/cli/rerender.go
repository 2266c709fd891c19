package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipwright/clipwright/internal/pipeline"
	"github.com/clipwright/clipwright/internal/types"
	"github.com/clipwright/clipwright/internal/usecase"
)

const rerenderTimeout = 30 * time.Minute

func rerenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rerender",
		Short: "Re-render one exported clip with new caption preferences",
		RunE:  rerenderJob,
	}
	cmd.Flags().String("job", "", "Job ID")
	cmd.Flags().String("clip", "", "Clip ID")
	cmd.Flags().String("aspect", "9:16", "Output aspect ratio (9:16, 1:1, 16:9)")
	cmd.Flags().Bool("captions", false, "Burn captions into the clip")
	cmd.Flags().String("font", "", "Caption font name")
	cmd.Flags().Int("font-size", 0, "Caption font size (0 = dynamic)")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("clip")
	return cmd
}

func rerenderJob(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := pipeline.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rerenderTimeout)
	defer cancel()

	app, err := pipeline.Build(ctx, cfg, nil, logfFrom(cmd))
	if err != nil {
		return err
	}
	defer app.Close()

	jobID, _ := cmd.Flags().GetString("job")
	clipID, _ := cmd.Flags().GetString("clip")
	aspect, _ := cmd.Flags().GetString("aspect")

	in := usecase.ReRenderInput{JobID: jobID, ClipID: clipID, Aspect: aspect}
	if cmd.Flags().Changed("captions") || cmd.Flags().Changed("font") || cmd.Flags().Changed("font-size") {
		captions, _ := cmd.Flags().GetBool("captions")
		font, _ := cmd.Flags().GetString("font")
		size, _ := cmd.Flags().GetInt("font-size")
		prefs := types.SubtitlePrefs{Enabled: captions, FontName: font, FontSize: size}
		in.Subtitle = &prefs
		if err := app.Usecase.SetSubtitlePrefs(ctx, jobID, clipID, prefs); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not store subtitle prefs: %v\n", err)
		}
	}

	clip, err := app.Usecase.ReRenderClip(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %7.1fs  %s\n", clip.ID, clip.Duration, clip.VideoURL)
	return nil
}
