package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Background canvas for narration-only jobs.
const (
	backgroundSize  = "1280x720"
	backgroundColor = "black"
	backgroundFPS   = 30
)

// Assembler concatenates segments and binds the narration track to the result.
type Assembler struct {
	runner  CommandRunner
	tools   Tools
	prober  *Prober
	timeout time.Duration
}

func NewAssembler(runner CommandRunner, tools Tools, prober *Prober, timeout time.Duration) *Assembler {
	return &Assembler{runner: runner, tools: tools, prober: prober, timeout: timeout}
}

// Assemble concatenates segments in index order, then muxes the result against
// audio. Every input and intermediate (segment files, manifest, concatenated
// video, narration) is removed whether it succeeds or not; only the returned
// asset survives.
func (a *Assembler) Assemble(ctx context.Context, ws *Workspace, segments []Segment, audio *AudioAsset) (*MediaAsset, error) {
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	releaseSegments := func() {
		for i := range ordered {
			ws.Release(&ordered[i].File)
		}
	}
	releaseAudio := func() {
		if audio != nil {
			ws.Release(&audio.MediaAsset)
		}
	}

	if audio == nil {
		releaseSegments()
		return nil, newStageError(StageAssemble, ReasonMux, errors.New("no narration audio"))
	}

	paths := make([]string, len(ordered))
	for i, s := range ordered {
		paths[i] = s.File.Path
	}

	concatPath := ws.Path("concat.mp4")
	if err := a.Concatenate(ctx, ws, paths, concatPath); err != nil {
		ws.Remove(concatPath)
		releaseSegments()
		releaseAudio()
		return nil, err
	}
	releaseSegments()

	finalPath := ws.Path("final.mp4")
	err := a.Mux(ctx, concatPath, audio.Path, finalPath)
	ws.Remove(concatPath)
	releaseAudio()
	if err != nil {
		ws.Remove(finalPath)
		return nil, err
	}

	duration, err := a.prober.Probe(ctx, finalPath)
	if err != nil {
		ws.Remove(finalPath)
		return nil, newStageError(StageAssemble, ReasonMux, fmt.Errorf("muxed output is unreadable: %w", err))
	}

	log.Printf("[FFmpeg] job %s: final video ready (%.2fs, narration %.2fs)", ws.JobID(), duration, audio.DurationSeconds)

	return &MediaAsset{
		Path:            finalPath,
		Kind:            KindVideo,
		DurationSeconds: duration,
		Owned:           true,
	}, nil
}

// Concatenate writes a concat manifest for paths and stream-copies them into
// outputPath. The manifest is removed on every path out.
func (a *Assembler) Concatenate(ctx context.Context, ws *Workspace, paths []string, outputPath string) error {
	if len(paths) == 0 {
		return newStageError(StageAssemble, ReasonConcat, errors.New("no segments to concatenate"))
	}

	listPath := ws.Path("concat.txt")
	defer ws.Remove(listPath)

	manifest, err := BuildManifest(paths)
	if err != nil {
		return newStageError(StageAssemble, ReasonConcat, err)
	}
	if err := os.WriteFile(listPath, []byte(manifest), 0644); err != nil {
		return newStageError(StageAssemble, ReasonConcat, fmt.Errorf("failed to create concat list: %w", err))
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	if _, err := a.runner.Run(ctx, a.timeout, a.tools.ffmpeg(), args...); err != nil {
		return commandFailure(StageAssemble, ReasonConcat, fmt.Errorf("ffmpeg concatenate failed: %w", err))
	}
	return nil
}

// Mux combines the visual track of videoPath with the audio track of
// audioPath, re-encoding to H.264/AAC. The shorter input bounds the output.
func (a *Assembler) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		outputPath,
	}

	if _, err := a.runner.Run(ctx, a.timeout, a.tools.ffmpeg(), args...); err != nil {
		return commandFailure(StageAssemble, ReasonMux, fmt.Errorf("ffmpeg mux failed: %w", err))
	}
	return nil
}

// RenderBackground produces a silent solid-colour video of the given length,
// used in place of source segments when a job has narration only.
func (a *Assembler) RenderBackground(ctx context.Context, ws *Workspace, seconds float64) (*Segment, error) {
	if seconds <= 0 {
		return nil, newStageError(StageAssemble, ReasonConcat, fmt.Errorf("background length %v must be > 0", seconds))
	}

	out := ws.Path("background.mp4")
	args := []string{
		"-y",
		"-f", "lavfi",
		"-t", formatSeconds(seconds),
		"-i", fmt.Sprintf("color=c=%s:s=%s:r=%d", backgroundColor, backgroundSize, backgroundFPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		out,
	}

	if _, err := a.runner.Run(ctx, a.timeout, a.tools.ffmpeg(), args...); err != nil {
		ws.Remove(out)
		return nil, commandFailure(StageAssemble, ReasonConcat, fmt.Errorf("ffmpeg render background failed: %w", err))
	}

	return &Segment{
		Boundary: Boundary{Index: 0, Start: 0, End: seconds},
		File: MediaAsset{
			Path:            out,
			Kind:            KindVideo,
			DurationSeconds: seconds,
			Owned:           true,
		},
	}, nil
}

// BuildManifest renders the ffmpeg concat list: one `file '<absolute-path>'`
// line per entry, in the given order.
func BuildManifest(paths []string) (string, error) {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", p, err)
		}
		// Single quotes inside a quoted concat path are written as '\''
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return b.String(), nil
}
