package media

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildManifest(t *testing.T) {
	got, err := BuildManifest([]string{"/tmp/a/seg_0000.mp4", "/tmp/it's/seg_0001.mp4"})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}

	want := "file '/tmp/a/seg_0000.mp4'\nfile '/tmp/it'\\''s/seg_0001.mp4'\n"
	if got != want {
		t.Errorf("manifest mismatch\nwant: %q\ngot:  %q", want, got)
	}
}

func TestBuildManifestMakesPathsAbsolute(t *testing.T) {
	got, err := BuildManifest([]string{"relative.mp4"})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	line := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(got), "file '"), "'")
	if !filepath.IsAbs(line) {
		t.Errorf("expected absolute path, got %q", line)
	}
}

// segmentFixture cuts a probed source and synthesizes a narration file, both
// inside ws, using the fake runner.
func segmentFixture(t *testing.T, r *fakeRunner, ws *Workspace, videoSeconds, audioSeconds float64) ([]Segment, *AudioAsset) {
	t.Helper()
	src := newTestSource(t, r, t.TempDir(), videoSeconds)
	segs, err := NewSegmenter(r, Tools{}, 0, 1).Segment(context.Background(), ws, src, 60)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}

	audioPath := ws.Path("narration.mp3")
	if err := os.WriteFile(audioPath, []byte("audio"), 0644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	r.setDuration(audioPath, audioSeconds)
	return segs, &AudioAsset{MediaAsset: MediaAsset{Path: audioPath, Kind: KindAudio, DurationSeconds: audioSeconds, Owned: true}}
}

func TestAssembleLeavesOnlyFinal(t *testing.T) {
	dir := t.TempDir()
	r := newFakeRunner()
	ws, _ := NewWorkspace(dir, "job1")
	segs, audio := segmentFixture(t, r, ws, 125, 90)

	// Hand segments over out of order; the manifest must still be chronological.
	shuffled := []Segment{segs[2], segs[0], segs[1]}

	a := NewAssembler(r, Tools{}, NewProber(r, Tools{}, 0), 0)
	final, err := a.Assemble(context.Background(), ws, shuffled, audio)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if files := listDir(dir); len(files) != 1 || files[0] != "job1_final.mp4" {
		t.Errorf("expected only the final artifact, found %v", files)
	}
	if tracked := ws.Tracked(); len(tracked) != 1 || tracked[0] != final.Path {
		t.Errorf("expected only the final path tracked, got %v", tracked)
	}

	if len(r.manifests) != 1 {
		t.Fatalf("expected one manifest, got %d", len(r.manifests))
	}
	lines := strings.Split(strings.TrimSpace(r.manifests[0]), "\n")
	for i, line := range lines {
		if !strings.Contains(line, segs[i].File.Path) {
			t.Errorf("manifest line %d = %q, want segment %d", i, line, i)
		}
	}
}

func TestAssembleDurationIsShorterInput(t *testing.T) {
	tests := []struct {
		name  string
		video float64
		audio float64
	}{
		{"audio shorter", 125, 90},
		{"video shorter", 45, 70},
		{"equal", 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			ws, _ := NewWorkspace(t.TempDir(), "job1")
			segs, audio := segmentFixture(t, r, ws, tt.video, tt.audio)

			final, err := NewAssembler(r, Tools{}, NewProber(r, Tools{}, 0), 0).Assemble(context.Background(), ws, segs, audio)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			want := math.Min(tt.video, tt.audio)
			if math.Abs(final.DurationSeconds-want) > 0.05 {
				t.Errorf("final duration = %v, want ~%v", final.DurationSeconds, want)
			}
		})
	}
}

func TestAssembleFailureCleansUp(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		reason Reason
	}{
		{"concat", "concat", ReasonConcat},
		{"mux", "-shortest", ReasonMux},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			r := newFakeRunner()
			ws, _ := NewWorkspace(dir, "job1")
			segs, audio := segmentFixture(t, r, ws, 125, 90)

			r.fail = func(name string, args []string) error {
				if hasArg(args, tt.failOn) {
					return errors.New("exit status 1")
				}
				return nil
			}

			_, err := NewAssembler(r, Tools{}, NewProber(r, Tools{}, 0), 0).Assemble(context.Background(), ws, segs, audio)
			se, ok := AsStageError(err)
			if !ok || se.Stage != StageAssemble || se.Reason != tt.reason {
				t.Fatalf("expected assemble/%s, got %v", tt.reason, err)
			}
			if files := listDir(dir); len(files) != 0 {
				t.Errorf("expected empty workspace, found %v", files)
			}
		})
	}
}

func TestAssembleKeepsUnownedInputs(t *testing.T) {
	dir := t.TempDir()
	r := newFakeRunner()
	ws, _ := NewWorkspace(dir, "job1")

	external := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(external, []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}
	r.setDuration(external, 20)
	_, audio := segmentFixture(t, r, ws, 10, 15)

	segs := []Segment{{Boundary: Boundary{Index: 0, End: 20}, File: MediaAsset{Path: external, Kind: KindVideo, DurationSeconds: 20}}}
	if _, err := NewAssembler(r, Tools{}, NewProber(r, Tools{}, 0), 0).Assemble(context.Background(), ws, segs, audio); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, err := os.Stat(external); err != nil {
		t.Errorf("caller-owned segment was removed: %v", err)
	}
}

func TestRenderBackground(t *testing.T) {
	r := newFakeRunner()
	ws, _ := NewWorkspace(t.TempDir(), "job1")

	seg, err := NewAssembler(r, Tools{}, NewProber(r, Tools{}, 0), 0).RenderBackground(context.Background(), ws, 42.5)
	if err != nil {
		t.Fatalf("RenderBackground: %v", err)
	}
	if seg.Index != 0 || seg.End != 42.5 {
		t.Errorf("unexpected boundary %+v", seg.Boundary)
	}
	if got := argValues(r.calls[0].args, "-t"); len(got) != 1 || got[0] != "42.500" {
		t.Errorf("expected -t 42.500, got %v", got)
	}
	if !hasArg(r.calls[0].args, "lavfi") {
		t.Errorf("expected lavfi input, got %v", r.calls[0].args)
	}
}
