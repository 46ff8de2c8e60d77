package main

import (
	"fmt"
	"strconv"

	"github.com/bobarin/reelforge/internal/app"
	"github.com/spf13/cobra"
)

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Report the duration and streams of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			deps := app.NewDeps(cfg, nil)

			ctx, stop := signalContext(cmd)
			defer stop()

			duration, err := deps.Prober.Probe(ctx, args[0])
			if err != nil {
				return err
			}
			info, err := deps.Prober.Inspect(ctx, args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"File", args[0]},
				{"Duration", formatDuration(duration)},
				{"Video", strconv.FormatBool(info.HasVideo)},
				{"Audio", strconv.FormatBool(info.HasAudio)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
