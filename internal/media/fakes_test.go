package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type runCall struct {
	name string
	args []string
}

// fakeRunner simulates ffmpeg/ffprobe. ffmpeg writes a placeholder to its last
// argument and the fake tracks durations so probes of produced files answer
// what a real engine would: extraction yields -t, concat sums its inputs, mux
// yields the shorter input.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []runCall
	durations map[string]float64
	manifests []string
	noVideo   bool
	// fail is consulted before every call; a non-nil error aborts it.
	fail func(name string, args []string) error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{durations: make(map[string]float64)}
}

func (f *fakeRunner) setDuration(path string, d float64) {
	f.mu.Lock()
	f.durations[path] = d
	f.mu.Unlock()
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{name: name, args: append([]string(nil), args...)})
	fail := f.fail
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &CommandResult{ExitCode: -1}, fmt.Errorf("%s: %w", name, err)
	}
	if fail != nil {
		if err := fail(name, args); err != nil {
			return &CommandResult{ExitCode: 1, Stderr: []byte(err.Error())}, err
		}
	}

	target := args[len(args)-1]
	if name == "ffprobe" {
		return f.probe(target, args)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	inputs := argValues(args, "-i")
	var d float64
	switch {
	case hasArg(args, "concat"):
		data, err := os.ReadFile(inputs[0])
		if err != nil {
			return &CommandResult{ExitCode: 1}, err
		}
		f.manifests = append(f.manifests, string(data))
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			p := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
			d += f.durations[p]
		}
	case hasArg(args, "-shortest"):
		d = math.Min(f.durations[inputs[0]], f.durations[inputs[1]])
	case hasArg(args, "-t"):
		d, _ = strconv.ParseFloat(argValues(args, "-t")[0], 64)
	case len(inputs) == 1:
		d = f.durations[inputs[0]]
	}
	f.durations[target] = d

	if err := os.WriteFile(target, []byte("media"), 0644); err != nil {
		return &CommandResult{ExitCode: 1}, err
	}
	return &CommandResult{}, nil
}

func (f *fakeRunner) probe(path string, args []string) (*CommandResult, error) {
	f.mu.Lock()
	d, ok := f.durations[path]
	noVideo := f.noVideo
	f.mu.Unlock()

	if !ok {
		return &CommandResult{ExitCode: 1}, fmt.Errorf("ffprobe: %s: no such file", path)
	}
	if hasArg(args, "json") {
		video := `{"codec_type":"video"},`
		if noVideo {
			video = ""
		}
		out := fmt.Sprintf(`{"format":{"duration":"%f"},"streams":[%s{"codec_type":"audio"}]}`, d, video)
		return &CommandResult{Stdout: []byte(out)}, nil
	}
	return &CommandResult{Stdout: []byte(strconv.FormatFloat(d, 'f', -1, 64) + "\n")}, nil
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.name == name {
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

type fakeEngine struct {
	calls  int
	speech *Speech
	err    error
}

func (e *fakeEngine) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*Speech, error) {
	e.calls++
	return e.speech, e.err
}

type fakeDownloader struct {
	calls int
	err   error
	// onFetch runs after a successful write, e.g. to register a probe duration.
	onFetch func(dest string)
}

func (d *fakeDownloader) Fetch(ctx context.Context, url, destPath string) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	if err := os.WriteFile(destPath, []byte("video"), 0644); err != nil {
		return err
	}
	if d.onFetch != nil {
		d.onFetch(destPath)
	}
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
