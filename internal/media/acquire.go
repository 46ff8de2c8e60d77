package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"
)

// Acquirer resolves a job's source into a local video file.
type Acquirer struct {
	downloader Downloader
	runner     CommandRunner
	tools      Tools
	timeout    time.Duration
	// normalize re-encodes every acquired file to H.264/AAC MP4 first.
	normalize bool
}

func NewAcquirer(downloader Downloader, runner CommandRunner, tools Tools, timeout time.Duration, normalize bool) *Acquirer {
	return &Acquirer{
		downloader: downloader,
		runner:     runner,
		tools:      tools,
		timeout:    timeout,
		normalize:  normalize,
	}
}

// Acquire makes source available locally. Local paths (plain or file://) are
// used in place and never deleted by the pipeline; http(s) URLs are handed to
// the Downloader once, with no retry. Whether the file is readable media is
// left to the probe stage.
func (a *Acquirer) Acquire(ctx context.Context, ws *Workspace, source string) (*MediaAsset, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, newStageError(StageAcquire, ReasonUnsupportedSource, errors.New("source is empty"))
	}

	asset, err := a.resolve(ctx, ws, source)
	if err != nil {
		return nil, err
	}

	if !a.normalize {
		return asset, nil
	}
	return a.convert(ctx, ws, asset)
}

func (a *Acquirer) resolve(ctx context.Context, ws *Workspace, source string) (*MediaAsset, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		path := source
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		fi, statErr := os.Stat(path)
		if statErr != nil || fi.IsDir() {
			return nil, newStageError(StageAcquire, ReasonUnsupportedSource, fmt.Errorf("local source %s is not a readable file", path))
		}
		return &MediaAsset{Path: path, Kind: KindVideo, Owned: false}, nil
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newStageError(StageAcquire, ReasonUnsupportedSource, fmt.Errorf("scheme %q is not supported", u.Scheme))
	}

	dest := ws.Path("source.mp4")
	log.Printf("[Acquire] job %s: downloading %s", ws.JobID(), source)

	if err := a.downloader.Fetch(ctx, source, dest); err != nil {
		ws.Remove(dest)
		return nil, classifyDownload(err)
	}

	fi, err := os.Stat(dest)
	if err != nil || fi.Size() == 0 {
		ws.Remove(dest)
		return nil, newStageError(StageAcquire, ReasonExtractionFailed, fmt.Errorf("downloader wrote no file for %s", source))
	}

	log.Printf("[Acquire] job %s: downloaded %d bytes", ws.JobID(), fi.Size())
	return &MediaAsset{Path: dest, Kind: KindVideo, Owned: true}, nil
}

func classifyDownload(err error) *StageError {
	switch {
	case errors.Is(err, ErrUnsupportedSource):
		return newStageError(StageAcquire, ReasonUnsupportedSource, err)
	case errors.Is(err, ErrNetwork):
		return newStageError(StageAcquire, ReasonNetwork, err)
	default:
		return commandFailure(StageAcquire, ReasonExtractionFailed, err)
	}
}

// convert re-encodes asset into <job>_normalized.mp4 and drops the original
// if the pipeline owns it.
func (a *Acquirer) convert(ctx context.Context, ws *Workspace, asset *MediaAsset) (*MediaAsset, error) {
	out := ws.Path("normalized.mp4")
	args := []string{
		"-y",
		"-i", asset.Path,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		out,
	}

	log.Printf("[FFmpeg] job %s: normalizing source to mp4", ws.JobID())

	_, err := a.runner.Run(ctx, a.timeout, a.tools.ffmpeg(), args...)
	ws.Release(asset)
	if err != nil {
		ws.Remove(out)
		return nil, commandFailure(StageAcquire, ReasonExtractionFailed, fmt.Errorf("ffmpeg convert failed: %w", err))
	}

	return &MediaAsset{Path: out, Kind: KindVideo, Owned: true}, nil
}
