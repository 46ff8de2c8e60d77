package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bobarin/reelforge/internal/media"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := NewExecRunner(false)
	res, err := r.Run(context.Background(), time.Second, "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 || strings.TrimSpace(string(res.Stdout)) != "out" || strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Errorf("unexpected result: code=%d stdout=%q stderr=%q", res.ExitCode, res.Stdout, res.Stderr)
	}
}

func TestExecRunnerExitError(t *testing.T) {
	r := NewExecRunner(false)
	res, err := r.Run(context.Background(), time.Second, "sh", "-c", "echo 'Invalid data found' >&2; exit 3")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 || res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d / %d", exitErr.Code, res.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "Invalid data found") {
		t.Errorf("stderr not captured: %q", exitErr.Stderr)
	}
	if errors.Is(err, media.ErrTimeout) {
		t.Error("exit error must not look like a timeout")
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(false)
	start := time.Now()
	_, err := r.Run(context.Background(), 100*time.Millisecond, "sleep", "5")
	if !errors.Is(err, media.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("process was not killed promptly (%s)", elapsed)
	}
}

func TestExecRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := NewExecRunner(false).Run(ctx, 0, "sleep", "5")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, media.ErrTimeout) {
		t.Error("cancellation must not look like a timeout")
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := NewExecRunner(false).Run(context.Background(), time.Second, "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Errorf("missing binary should not be an ExitError: %v", err)
	}
}

func TestTail(t *testing.T) {
	got := tail("a\n\nb\nc\n  \nd\n", 2)
	if got != "c | d" {
		t.Errorf("tail = %q", got)
	}
}
