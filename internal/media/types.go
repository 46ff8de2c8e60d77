package media

import (
	"context"
	"time"
)

// Kind distinguishes visual from audio-only assets.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// MediaAsset is a media file on local disk. DurationSeconds is zero until probed.
type MediaAsset struct {
	Path            string
	Kind            Kind
	DurationSeconds float64
	// Owned is false for caller-supplied files the pipeline must never delete.
	Owned bool
}

// Probed reports whether a positive duration is known for the asset.
func (a *MediaAsset) Probed() bool {
	return a != nil && a.DurationSeconds > 0
}

// AudioAsset is narration produced by the Synthesizer. Its duration is
// authoritative for the final video's length.
type AudioAsset struct {
	MediaAsset
}

// Boundary is one half-open interval [Start, End) of a source asset.
type Boundary struct {
	Index int
	Start float64
	End   float64
}

// Duration returns End - Start.
func (b Boundary) Duration() float64 {
	return b.End - b.Start
}

// Segment is a boundary that has been extracted into its own file.
type Segment struct {
	Boundary
	File MediaAsset
}

// CommandResult is the captured outcome of one subprocess invocation.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// CommandRunner runs external tools (ffmpeg, ffprobe, yt-dlp). A zero timeout
// means no deadline beyond ctx. Implementations return an error wrapping
// ErrTimeout when the deadline is hit, and an error wrapping context.Canceled
// when ctx is cancelled; the subprocess is killed in both cases.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*CommandResult, error)
}

// Downloader resolves a remote media URL into a single local file.
// Errors wrap ErrUnsupportedSource or ErrNetwork where applicable; any other
// error is treated as a site-specific extraction failure.
type Downloader interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// Tools holds the executable names of the transcoding engine.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

func (t Tools) ffmpeg() string {
	if t.FFmpeg == "" {
		return "ffmpeg"
	}
	return t.FFmpeg
}

func (t Tools) ffprobe() string {
	if t.FFprobe == "" {
		return "ffprobe"
	}
	return t.FFprobe
}
