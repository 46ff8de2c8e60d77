package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bobarin/reelforge/internal/app"
	"github.com/bobarin/reelforge/internal/media"
	"github.com/bobarin/reelforge/internal/pipeline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSplitCommand() *cobra.Command {
	var (
		source string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Cut a source video into fixed-length segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			length, _ := cmd.Flags().GetFloat64("segment-seconds")
			if cmd.Flags().Changed("segment-seconds") && !(length > 0) {
				return fmt.Errorf("--segment-seconds must be positive, got %v", length)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}

			jobID := uuid.NewString()
			orch, err := pipeline.New(jobID, cfg.TempDir, app.NewDeps(cfg, nil), pipeline.Options{
				SegmentSeconds: cfg.DefaultSegmentSeconds,
			})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			var rows [][]string
			res := orch.Split(ctx, pipeline.Request{Source: source, SegmentSeconds: length}, func(ctx context.Context, seg media.Segment) (string, error) {
				dest, err := filepath.Abs(filepath.Join(outDir, fmt.Sprintf("segment_%04d.mp4", seg.Index)))
				if err != nil {
					return "", err
				}
				if err := moveFile(seg.File.Path, dest); err != nil {
					return "", err
				}
				rows = append(rows, []string{
					strconv.Itoa(seg.Index),
					formatDuration(seg.Start),
					formatDuration(seg.End),
					dest,
				})
				return dest, nil
			})
			for _, cerr := range res.CleanupErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "cleanup: %v\n", cerr)
			}
			if !res.OK() {
				return fmt.Errorf("job %s: %w", jobID, res.Failure)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Start", "End", "File"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source video: local path, file:// or http(s) URL")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "segments", "Directory receiving the segments")

	return cmd
}
