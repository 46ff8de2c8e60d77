package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/bobarin/reelforge/internal/media"
)

var (
	unsupportedPattern = regexp.MustCompile(`(?i)unsupported url|no suitable extractor|is not a valid url`)
	networkPattern     = regexp.MustCompile(`(?i)http error 5\d\d|timed out|temporary failure in name resolution|name or service not known|connection (refused|reset)|network is unreachable|unable to download webpage`)
)

// YTDLP downloads remote media with yt-dlp. It makes exactly one attempt per call.
type YTDLP struct {
	runner  media.CommandRunner
	binary  string
	timeout time.Duration
}

var _ media.Downloader = (*YTDLP)(nil)

func NewYTDLP(runner media.CommandRunner, binary string, timeout time.Duration) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLP{runner: runner, binary: binary, timeout: timeout}
}

// Fetch downloads url into destPath as a single merged MP4.
func (y *YTDLP) Fetch(ctx context.Context, url, destPath string) error {
	args := []string{
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--no-part",
		"--retries", "0",
		"-o", destPath,
		url,
	}

	start := time.Now()
	_, err := y.runner.Run(ctx, y.timeout, y.binary, args...)
	if err != nil {
		return classifyYTDLP(err)
	}

	log.Printf("[yt-dlp] Fetched %s in %s", url, time.Since(start).Round(time.Millisecond))
	return nil
}

// classifyYTDLP wraps err with media.ErrUnsupportedSource or media.ErrNetwork
// based on yt-dlp's stderr. Timeouts and cancellation pass through unchanged.
func classifyYTDLP(err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	switch {
	case unsupportedPattern.MatchString(exitErr.Stderr):
		return fmt.Errorf("%w: %v", media.ErrUnsupportedSource, err)
	case networkPattern.MatchString(exitErr.Stderr):
		return fmt.Errorf("%w: %v", media.ErrNetwork, err)
	default:
		return err
	}
}
