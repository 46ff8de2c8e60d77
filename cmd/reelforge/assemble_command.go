package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/reelforge/internal/app"
	"github.com/bobarin/reelforge/internal/pipeline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAssembleCommand() *cobra.Command {
	var (
		source     string
		script     string
		scriptFile string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Narrate a script over a source video (or a plain background without --source)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readScript(script, scriptFile)
			if err != nil {
				return err
			}
			length, _ := cmd.Flags().GetFloat64("segment-seconds")
			if cmd.Flags().Changed("segment-seconds") && !(length > 0) {
				return fmt.Errorf("--segment-seconds must be positive, got %v", length)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tts, err := app.NewTTS(cfg)
			if err != nil {
				return err
			}

			jobID := uuid.NewString()
			orch, err := pipeline.New(jobID, cfg.TempDir, app.NewDeps(cfg, tts), pipeline.Options{
				SegmentSeconds: cfg.DefaultSegmentSeconds,
			})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			res := orch.Run(ctx, pipeline.Request{Source: source, Script: text, SegmentSeconds: length})
			for _, cerr := range res.CleanupErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "cleanup: %v\n", cerr)
			}
			if !res.OK() {
				if res.Failure.Cancelled() {
					return fmt.Errorf("job %s cancelled: %w", jobID, res.Failure)
				}
				return fmt.Errorf("job %s: %w", jobID, res.Failure)
			}

			dest, err := filepath.Abs(out)
			if err != nil {
				return err
			}
			if err := moveFile(res.Artifact.Path, dest); err != nil {
				return err
			}

			rows := [][]string{
				{"Job", jobID},
				{"Output", dest},
				{"Duration", formatDuration(res.Artifact.DurationSeconds)},
				{"Stages", joinStates(res.States)},
				{"Elapsed", res.Elapsed.Round(time.Millisecond).String()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source video: local path, file:// or http(s) URL")
	cmd.Flags().StringVar(&script, "script", "", "Narration text")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "Read narration text from a file (- for stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "final.mp4", "Output file")

	return cmd
}

func readScript(script, scriptFile string) (string, error) {
	if script != "" && scriptFile != "" {
		return "", errors.New("use either --script or --script-file, not both")
	}
	if scriptFile != "" {
		var (
			data []byte
			err  error
		)
		if scriptFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(scriptFile)
		}
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		script = string(data)
	}
	if strings.TrimSpace(script) == "" {
		return "", errors.New("a non-empty --script or --script-file is required")
	}
	return script, nil
}

func joinStates(states []pipeline.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " > ")
}
