package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/reelforge/internal/media"
)

// fakeEngine stands in for ffmpeg and ffprobe. Produced files get the duration
// a real encode would give them so later probes are consistent.
type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	durations map[string]float64
	// narration is the probed length of any *_narration.* file.
	narration float64
	// noVideo makes JSON probes report an audio-only file.
	noVideo bool
	fail    func(name string, args []string) error
}

func newFakeEngine(narration float64) *fakeEngine {
	return &fakeEngine{durations: make(map[string]float64), narration: narration}
}

func (f *fakeEngine) set(path string, d float64) {
	f.mu.Lock()
	f.durations[path] = d
	f.mu.Unlock()
}

func (f *fakeEngine) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*media.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	fail := f.fail
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &media.CommandResult{ExitCode: -1}, fmt.Errorf("%s: %w", name, err)
	}
	if fail != nil {
		if err := fail(name, args); err != nil {
			return &media.CommandResult{ExitCode: 1}, err
		}
	}

	target := args[len(args)-1]
	f.mu.Lock()
	defer f.mu.Unlock()

	if name == "ffprobe" {
		d, ok := f.durations[target]
		if !ok && strings.Contains(target, "_narration.") {
			if _, err := os.Stat(target); err == nil {
				d, ok = f.narration, true
			}
		}
		if !ok {
			return &media.CommandResult{ExitCode: 1}, fmt.Errorf("ffprobe: %s: no such file", target)
		}
		if hasArg(args, "json") {
			video := `{"codec_type":"video"},`
			if f.noVideo {
				video = ""
			}
			out := fmt.Sprintf(`{"format":{"duration":"%f"},"streams":[%s{"codec_type":"audio"}]}`, d, video)
			return &media.CommandResult{Stdout: []byte(out)}, nil
		}
		return &media.CommandResult{Stdout: []byte(strconv.FormatFloat(d, 'f', -1, 64))}, nil
	}

	inputs := argValues(args, "-i")
	var d float64
	switch {
	case hasArg(args, "concat"):
		data, err := os.ReadFile(inputs[0])
		if err != nil {
			return &media.CommandResult{ExitCode: 1}, err
		}
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			d += f.durations[strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")]
		}
	case hasArg(args, "-shortest"):
		d = math.Min(f.durations[inputs[0]], f.lookup(inputs[1]))
	case hasArg(args, "-t"):
		d, _ = strconv.ParseFloat(argValues(args, "-t")[0], 64)
	}
	f.durations[target] = d

	if err := os.WriteFile(target, []byte("media"), 0644); err != nil {
		return &media.CommandResult{ExitCode: 1}, err
	}
	return &media.CommandResult{}, nil
}

func (f *fakeEngine) lookup(path string) float64 {
	if d, ok := f.durations[path]; ok {
		return d
	}
	return f.narration
}

func (f *fakeEngine) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func argValues(args []string, flag string) []string {
	var out []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			out = append(out, args[i+1])
		}
	}
	return out
}

type fakeTTS struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (t *fakeTTS) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*media.Speech, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return &media.Speech{AudioData: []byte("audio"), Format: "mp3"}, nil
}

type fakeDownloader struct {
	mu      sync.Mutex
	calls   int
	engine  *fakeEngine
	seconds float64
	err     error
}

func (d *fakeDownloader) Fetch(ctx context.Context, url, destPath string) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if err := os.WriteFile(destPath, []byte("video"), 0644); err != nil {
		return err
	}
	d.engine.set(destPath, d.seconds)
	return nil
}

func listDir(dir string) []string {
	entries, _ := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
