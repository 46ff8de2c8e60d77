package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/bobarin/reelforge/internal/media"
)

// stderrTailLines is how much tool output an ExitError keeps for diagnostics.
const stderrTailLines = 8

// ExitError reports a subprocess that ran but exited non-zero.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.Code, e.Stderr)
}

// ExecRunner runs ffmpeg, ffprobe and yt-dlp as child processes.
type ExecRunner struct {
	// Verbose logs every command line before it runs.
	Verbose bool
}

var _ media.CommandRunner = (*ExecRunner)(nil)

func NewExecRunner(verbose bool) *ExecRunner {
	return &ExecRunner{Verbose: verbose}
}

// Run executes name with args and captures both output streams. The process is
// killed when timeout elapses or ctx is cancelled.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*media.CommandResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if r.Verbose {
		log.Printf("[Exec] %s %s", name, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Give a killed process a moment to flush before Wait gives up on its pipes.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	res := &media.CommandResult{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return res, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return res, fmt.Errorf("%s: %w", name, context.Canceled)
	case runCtx.Err() != nil:
		return res, fmt.Errorf("%s exceeded %s: %w", name, timeout, media.ErrTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Name: name, Code: exitErr.ExitCode(), Stderr: tail(stderr.String(), stderrTailLines)}
	}
	return res, fmt.Errorf("failed to run %s: %w", name, err)
}

// tail returns the last n non-empty lines of s joined by " | ".
func tail(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
