package media

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Workspace is the temporary-file namespace of a single job. Every path it
// hands out lives in one shared directory and is prefixed with the job id, so
// concurrent jobs never collide. Each tracked path is removed at most once.
type Workspace struct {
	dir   string
	jobID string

	mu      sync.Mutex
	live    map[string]struct{}
	cleanup []error
}

// NewWorkspace creates dir if needed and returns a workspace for jobID.
func NewWorkspace(dir, jobID string) (*Workspace, error) {
	if jobID == "" {
		return nil, fmt.Errorf("workspace: job id is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Workspace{
		dir:   dir,
		jobID: jobID,
		live:  make(map[string]struct{}),
	}, nil
}

// JobID returns the id embedded in every path of this workspace.
func (w *Workspace) JobID() string {
	return w.jobID
}

// Path returns <dir>/<jobID>_<name> and starts tracking it.
func (w *Workspace) Path(name string) string {
	p := filepath.Join(w.dir, w.jobID+"_"+name)
	w.mu.Lock()
	w.live[p] = struct{}{}
	w.mu.Unlock()
	return p
}

// Keep stops tracking path; it will survive RemoveAll. Used for the final artifact.
func (w *Workspace) Keep(path string) {
	w.mu.Lock()
	delete(w.live, path)
	w.mu.Unlock()
}

// Remove deletes the given tracked paths. Untracked paths (already removed,
// kept, or never issued by this workspace) are ignored. A file that was never
// created is not an error.
func (w *Workspace) Remove(paths ...string) {
	for _, p := range paths {
		w.mu.Lock()
		_, ok := w.live[p]
		delete(w.live, p)
		w.mu.Unlock()
		if !ok {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Workspace] job %s: failed to remove %s: %v", w.jobID, p, err)
			w.mu.Lock()
			w.cleanup = append(w.cleanup, err)
			w.mu.Unlock()
		}
	}
}

// RemoveAll removes every path still tracked.
func (w *Workspace) RemoveAll() {
	w.Remove(w.Tracked()...)
}

// Tracked returns the paths still pending removal, sorted.
func (w *Workspace) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.live))
	for p := range w.live {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// CleanupErrors returns the removal failures recorded so far.
func (w *Workspace) CleanupErrors() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]error, len(w.cleanup))
	copy(out, w.cleanup)
	return out
}

// Release removes the owned files of the given assets.
func (w *Workspace) Release(assets ...*MediaAsset) {
	for _, a := range assets {
		if a != nil && a.Owned {
			w.Remove(a.Path)
		}
	}
}
