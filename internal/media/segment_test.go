package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBoundariesScenario(t *testing.T) {
	got, err := Boundaries(125, 60)
	if err != nil {
		t.Fatalf("Boundaries: %v", err)
	}

	want := []Boundary{
		{Index: 0, Start: 0, End: 60},
		{Index: 1, Start: 60, End: 120},
		{Index: 2, Start: 120, End: 125},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d boundaries, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("boundary %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestBoundariesPartition(t *testing.T) {
	durations := []float64{0.5, 1, 7.3, 59.999, 60, 60.001, 125, 3600.25, 10000}
	lengths := []float64{0.1, 0.7, 1, 15, 60, 61, 7200}

	for _, d := range durations {
		for _, l := range lengths {
			t.Run(fmt.Sprintf("%v/%v", d, l), func(t *testing.T) {
				b, err := Boundaries(d, l)
				if err != nil {
					t.Fatalf("Boundaries: %v", err)
				}
				if len(b) == 0 {
					t.Fatal("expected at least one boundary")
				}
				if b[0].Start != 0 {
					t.Errorf("first start = %v, want 0", b[0].Start)
				}
				if b[len(b)-1].End != d {
					t.Errorf("last end = %v, want %v", b[len(b)-1].End, d)
				}
				for i := range b {
					if b[i].Index != i {
						t.Errorf("boundary %d has index %d", i, b[i].Index)
					}
					if b[i].End <= b[i].Start {
						t.Errorf("boundary %d is empty: %+v", i, b[i])
					}
					if b[i].Duration() > l+residualFraction*d {
						t.Errorf("boundary %d longer than %v: %+v", i, l, b[i])
					}
					if i+1 < len(b) && b[i].End != b[i+1].Start {
						t.Errorf("gap between %d and %d: %v != %v", i, i+1, b[i].End, b[i+1].Start)
					}
				}
				if d <= l && len(b) != 1 {
					t.Errorf("duration %v <= length %v should give one segment, got %d", d, l, len(b))
				}
				if want := int(math.Ceil(d / l)); d > l && (len(b) < want-1 || len(b) > want) {
					t.Errorf("expected about %d segments, got %d", want, len(b))
				}
			})
		}
	}
}

func TestBoundariesShortTail(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		length   float64
		want     []Boundary
	}{
		{
			name:     "half millisecond tail",
			duration: 120.0005,
			length:   60,
			want: []Boundary{
				{Index: 0, Start: 0, End: 60},
				{Index: 1, Start: 60, End: 120},
				{Index: 2, Start: 120, End: 120.0005},
			},
		},
		{
			name:     "exact multiple",
			duration: 120,
			length:   60,
			want: []Boundary{
				{Index: 0, Start: 0, End: 60},
				{Index: 1, Start: 60, End: 120},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Boundaries(tt.duration, tt.length)
			if err != nil {
				t.Fatalf("Boundaries: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d boundaries, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("boundary %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
				if got[i].Duration() > tt.length {
					t.Errorf("boundary %d longer than %v: %+v", i, tt.length, got[i])
				}
			}
		})
	}
}

func TestBoundariesRejectsInput(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		length   float64
		reason   Reason
	}{
		{"zero length", 10, 0, ReasonInvalidLength},
		{"negative length", 10, -5, ReasonInvalidLength},
		{"nan length", 10, math.NaN(), ReasonInvalidLength},
		{"too many segments", 3600, 1e-6, ReasonInvalidLength},
		{"zero duration", 0, 10, ReasonUnknownDuration},
		{"negative duration", -1, 10, ReasonUnknownDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Boundaries(tt.duration, tt.length)
			se, ok := AsStageError(err)
			if !ok {
				t.Fatalf("expected StageError, got %v", err)
			}
			if se.Stage != StageSegment || se.Reason != tt.reason {
				t.Errorf("expected segment/%s, got %s/%s", tt.reason, se.Stage, se.Reason)
			}
		})
	}
}

func newTestSource(t *testing.T, r *fakeRunner, dir string, duration float64) *MediaAsset {
	t.Helper()
	src := filepath.Join(dir, "source.mp4")
	r.setDuration(src, duration)
	return &MediaAsset{Path: src, Kind: KindVideo, DurationSeconds: duration, Owned: false}
}

func TestSegmentInvalidLengthInvokesNothing(t *testing.T) {
	dir := t.TempDir()
	r := newFakeRunner()
	ws, _ := NewWorkspace(dir, "job1")
	src := newTestSource(t, r, t.TempDir(), 30)

	for _, length := range []float64{0, -1} {
		_, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, src, length)
		se, ok := AsStageError(err)
		if !ok || se.Reason != ReasonInvalidLength {
			t.Fatalf("length %v: expected invalid-length, got %v", length, err)
		}
	}
	if n := len(r.calls); n != 0 {
		t.Errorf("expected zero subprocess invocations, got %d", n)
	}
}

func TestSegmentRequiresProbedSource(t *testing.T) {
	r := newFakeRunner()
	ws, _ := NewWorkspace(t.TempDir(), "job1")

	_, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, &MediaAsset{Path: "x.mp4"}, 10)
	se, ok := AsStageError(err)
	if !ok || se.Reason != ReasonUnknownDuration {
		t.Fatalf("expected unknown-duration, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("expected no invocations, got %d", len(r.calls))
	}
}

func TestSegmentExtractsInOrder(t *testing.T) {
	dir := t.TempDir()
	r := newFakeRunner()
	ws, _ := NewWorkspace(dir, "job1")
	src := newTestSource(t, r, t.TempDir(), 125)

	segs, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, src, 60)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("segment %d has index %d", i, s.Index)
		}
		if !strings.HasPrefix(filepath.Base(s.File.Path), "job1_") {
			t.Errorf("segment path %s lacks job prefix", s.File.Path)
		}
	}
	if segs[2].File.DurationSeconds != 5 {
		t.Errorf("last segment duration = %v, want 5", segs[2].File.DurationSeconds)
	}

	ss := argValues(r.calls[1].args, "-ss")
	if len(ss) != 1 || ss[0] != "60.000" {
		t.Errorf("second extraction should start at 60.000, got %v", ss)
	}
}

func TestSegmentShortSourceSingleSegment(t *testing.T) {
	r := newFakeRunner()
	ws, _ := NewWorkspace(t.TempDir(), "job1")
	src := newTestSource(t, r, t.TempDir(), 12.5)

	segs, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, src, 60)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(segs) != 1 || segs[0].Start != 0 || segs[0].End != 12.5 {
		t.Fatalf("expected one [0,12.5) segment, got %+v", segs)
	}
}

func TestSegmentFailureAtIndexCleansUp(t *testing.T) {
	const failAt = 2
	dir := t.TempDir()
	r := newFakeRunner()
	r.fail = func(name string, args []string) error {
		if strings.HasSuffix(args[len(args)-1], fmt.Sprintf("seg_%04d.mp4", failAt)) {
			return errors.New("exit status 1")
		}
		return nil
	}
	ws, _ := NewWorkspace(dir, "job1")
	src := newTestSource(t, r, t.TempDir(), 300)

	_, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, src, 60)
	se, ok := AsStageError(err)
	if !ok {
		t.Fatalf("expected StageError, got %v", err)
	}
	if se.Reason != ReasonExtractionFailed || se.Index != failAt {
		t.Errorf("expected extraction-failed at %d, got %s at %d", failAt, se.Reason, se.Index)
	}
	if n := r.count("ffmpeg"); n != failAt+1 {
		t.Errorf("expected %d extractions (none beyond the failure), got %d", failAt+1, n)
	}
	if files := listDir(dir); len(files) != 0 {
		t.Errorf("expected no segment files left, found %v", files)
	}
	if tracked := ws.Tracked(); len(tracked) != 0 {
		t.Errorf("expected nothing tracked, got %v", tracked)
	}
}

func TestSegmentParallelKeepsOrder(t *testing.T) {
	r := newFakeRunner()
	ws, _ := NewWorkspace(t.TempDir(), "job1")
	src := newTestSource(t, r, t.TempDir(), 95)

	segs, err := NewSegmenter(r, Tools{}, 0, 4).Segment(context.Background(), ws, src, 10)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(segs) != 10 {
		t.Fatalf("expected 10 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Index != i || s.Start != float64(i)*10 {
			t.Errorf("segment %d out of order: %+v", i, s.Boundary)
		}
		if !strings.HasSuffix(s.File.Path, fmt.Sprintf("seg_%04d.mp4", i)) {
			t.Errorf("segment %d has path %s", i, s.File.Path)
		}
	}
}

func TestSegmentParallelFailureRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	r := newFakeRunner()
	r.fail = func(name string, args []string) error {
		if strings.HasSuffix(args[len(args)-1], "seg_0003.mp4") {
			return errors.New("exit status 1")
		}
		return nil
	}
	ws, _ := NewWorkspace(dir, "job1")
	src := newTestSource(t, r, t.TempDir(), 80)

	_, err := NewSegmenter(r, Tools{}, 0, 3).Segment(context.Background(), ws, src, 10)
	if err == nil {
		t.Fatal("expected failure")
	}
	if files := listDir(dir); len(files) != 0 {
		t.Errorf("expected empty workspace, found %v", files)
	}
}

// gatedRunner blocks the extraction that writes gate until its context is cancelled.
type gatedRunner struct {
	*fakeRunner
	gate string
}

func (g gatedRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*CommandResult, error) {
	if strings.HasSuffix(args[len(args)-1], g.gate) {
		<-ctx.Done()
	}
	return g.fakeRunner.Run(ctx, timeout, name, args...)
}

func TestSegmentParallelFailureStartsNoQueuedWork(t *testing.T) {
	dir := t.TempDir()
	r := newFakeRunner()
	r.fail = func(name string, args []string) error {
		if strings.HasSuffix(args[len(args)-1], "seg_0000.mp4") {
			return errors.New("exit status 1")
		}
		return nil
	}
	ws, _ := NewWorkspace(dir, "job1")
	src := newTestSource(t, r, t.TempDir(), 80)

	runner := gatedRunner{fakeRunner: r, gate: "seg_0001.mp4"}
	_, err := NewSegmenter(runner, Tools{}, 0, 2).Segment(context.Background(), ws, src, 10)
	se, ok := AsStageError(err)
	if !ok || se.Reason != ReasonExtractionFailed || se.Index != 0 {
		t.Fatalf("expected extraction-failed at segment 0, got %v", err)
	}

	r.mu.Lock()
	calls := len(r.calls)
	r.mu.Unlock()
	if calls != 2 {
		t.Errorf("expected only the two in-flight extractions to run, got %d calls", calls)
	}
	if tracked := ws.Tracked(); len(tracked) != 0 {
		t.Errorf("expected nothing tracked, got %v", tracked)
	}
	if files := listDir(dir); len(files) != 0 {
		t.Errorf("expected empty workspace, found %v", files)
	}
}

func TestSegmentTimeoutReason(t *testing.T) {
	r := newFakeRunner()
	r.fail = func(string, []string) error { return fmt.Errorf("ffmpeg: %w", ErrTimeout) }
	ws, _ := NewWorkspace(t.TempDir(), "job1")
	src := newTestSource(t, r, t.TempDir(), 30)

	_, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, src, 10)
	se, ok := AsStageError(err)
	if !ok || se.Reason != ReasonTimeout || se.Index != 0 {
		t.Fatalf("expected timeout at segment 0, got %v", err)
	}
}
