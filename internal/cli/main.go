package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "clipwright",
		Short:        "Cut, caption and publish highlight clips from long videos",
		SilenceUsage: true,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Path to YAML config file")
	root.PersistentFlags().Bool("quiet", false, "Suppress progress output")

	root.AddCommand(runCmd(), rerenderCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logfFrom(cmd *cobra.Command) func(string, ...any) {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return func(string, ...any) {}
	}
	return log.Printf
}
