package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prober reads media metadata through ffprobe.
type Prober struct {
	runner  CommandRunner
	tools   Tools
	timeout time.Duration
}

func NewProber(runner CommandRunner, tools Tools, timeout time.Duration) *Prober {
	return &Prober{runner: runner, tools: tools, timeout: timeout}
}

// Probe returns the container duration of path in seconds. It never retries.
// Non-zero exit, unparseable output, and durations <= 0 all fail with
// ReasonUnreadable (ReasonTimeout / ReasonCancelled when the runner says so).
func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	res, err := p.runner.Run(ctx, p.timeout, p.tools.ffprobe(), args...)
	if err != nil {
		return 0, commandFailure(StageProbe, ReasonUnreadable, fmt.Errorf("ffprobe %s: %w", path, err))
	}

	seconds, err := ParseDuration(string(res.Stdout))
	if err != nil {
		return 0, newStageError(StageProbe, ReasonUnreadable, fmt.Errorf("%s: %w", path, err))
	}
	return seconds, nil
}

// ParseDuration parses the single-value ffprobe duration output.
func ParseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration in ffprobe output")
	}
	// Some containers print one line per entry; the first is the format duration.
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrNonPositiveDuration, seconds)
	}
	return seconds, nil
}

// StreamInfo summarises which kinds of streams a file carries.
type StreamInfo struct {
	DurationSeconds float64
	HasVideo        bool
	HasAudio        bool
}

// Inspect runs a JSON ffprobe and reports stream presence alongside duration.
func (p *Prober) Inspect(ctx context.Context, path string) (*StreamInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	}

	res, err := p.runner.Run(ctx, p.timeout, p.tools.ffprobe(), args...)
	if err != nil {
		return nil, commandFailure(StageProbe, ReasonUnreadable, fmt.Errorf("ffprobe %s: %w", path, err))
	}

	info, err := ParseStreams(res.Stdout)
	if err != nil {
		return nil, newStageError(StageProbe, ReasonUnreadable, fmt.Errorf("%s: %w", path, err))
	}
	return info, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType   string         `json:"codec_type"`
		Disposition map[string]int `json:"disposition"`
	} `json:"streams"`
}

// ParseStreams converts ffprobe JSON into StreamInfo. Cover art is not video.
func ParseStreams(data []byte) (*StreamInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := &StreamInfo{}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if s.Disposition["attached_pic"] == 0 {
				info.HasVideo = true
			}
		case "audio":
			info.HasAudio = true
		}
	}

	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil && d > 0 {
			info.DurationSeconds = d
		}
	}
	return info, nil
}
