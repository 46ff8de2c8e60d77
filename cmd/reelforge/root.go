package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobarin/reelforge/internal/config"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "reelforge",
		Short:         "Assemble, narrate and split videos locally with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("work-dir", "", "Directory for intermediate files (default TEMP_DIR)")
	root.PersistentFlags().Float64("segment-seconds", 0, "Segment length in seconds (default DEFAULT_SEGMENT_SECONDS)")

	root.AddCommand(newAssembleCommand())
	root.AddCommand(newSplitCommand())
	root.AddCommand(newProbeCommand())

	return root
}

// loadConfig reads pipeline settings from the environment and applies the
// persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("work-dir"); dir != "" {
		cfg.TempDir = dir
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so a running job stops its
// subprocess and cleans up before exiting.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
