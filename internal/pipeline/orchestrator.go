// Package pipeline sequences the media stages of a single job and owns the
// lifecycle of every temporary file the job creates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bobarin/reelforge/internal/media"
)

// State is a step of the per-job state machine. Transitions are strictly
// forward; any state may move to StateFailed.
type State string

const (
	StatePending      State = "pending"
	StateDownloading  State = "downloading"
	StateProbing      State = "probing"
	StateSynthesizing State = "synthesizing"
	StateSegmenting   State = "segmenting"
	StateAssembling   State = "assembling"
	StatePublishing   State = "publishing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// StagePublish and ReasonPublishFailed describe a split job whose publish
// callback rejected a segment.
const (
	StagePublish        media.Stage  = "publish"
	ReasonPublishFailed media.Reason = "publish-failed"
)

// Request describes one job. An empty Source makes a narration-only job
// rendered over a plain background.
type Request struct {
	Source         string
	Script         string
	SegmentSeconds float64 // 0 uses Options.SegmentSeconds
}

// Failure is the terminal error of a job: which stage failed and why.
type Failure struct {
	Stage  media.Stage
	Reason media.Reason
	// Index is the failing segment, -1 when not segment specific.
	Index int
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", f.Stage, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Cancelled reports whether the job stopped because its context was cancelled.
func (f *Failure) Cancelled() bool {
	return f != nil && f.Reason == media.ReasonCancelled
}

// Transient reports whether resubmitting the job could succeed.
func (f *Failure) Transient() bool {
	return f != nil && (&media.StageError{Stage: f.Stage, Reason: f.Reason}).Transient()
}

// Result is the outcome of Run. Exactly one of Artifact and Failure is set.
type Result struct {
	JobID    string
	Artifact *media.MediaAsset
	Failure  *Failure
	// States lists every state the job entered, in order.
	States []State
	// CleanupErrors are removal failures; they never change the outcome.
	CleanupErrors []error
	Elapsed       time.Duration
}

func (r *Result) OK() bool { return r.Failure == nil }

// SplitResult is the outcome of Split.
type SplitResult struct {
	JobID string
	// Locators holds what publish returned for each segment, in index order.
	Locators      []string
	Failure       *Failure
	States        []State
	CleanupErrors []error
	Elapsed       time.Duration
}

func (r *SplitResult) OK() bool { return r.Failure == nil }

// PublishFunc hands one extracted segment to the caller and returns its locator.
type PublishFunc func(ctx context.Context, seg media.Segment) (string, error)

// Deps are the stage components. The same values may be shared by many jobs.
type Deps struct {
	Acquirer    *media.Acquirer
	Prober      *media.Prober
	Synthesizer *media.Synthesizer
	Segmenter   *media.Segmenter
	Assembler   *media.Assembler
}

type Options struct {
	SegmentSeconds float64
	// OnStateChange is called synchronously on every transition.
	OnStateChange func(State)
}

// Orchestrator runs one job. It is not reusable across jobs.
type Orchestrator struct {
	jobID string
	ws    *media.Workspace
	deps  Deps
	opts  Options

	states []State
}

// New prepares a job whose intermediates live in workspaceDir under the jobID prefix.
func New(jobID, workspaceDir string, deps Deps, opts Options) (*Orchestrator, error) {
	ws, err := media.NewWorkspace(workspaceDir, jobID)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{jobID: jobID, ws: ws, deps: deps, opts: opts}
	o.enter(StatePending)
	return o, nil
}

func (o *Orchestrator) enter(s State) {
	o.states = append(o.states, s)
	if s != StatePending {
		log.Printf("[Pipeline] job %s: %s", o.jobID, s)
	}
	if o.opts.OnStateChange != nil {
		o.opts.OnStateChange(s)
	}
}

// fail converts err into the job's terminal Failure and enters StateFailed.
func (o *Orchestrator) fail(stage media.Stage, err error) *Failure {
	f := &Failure{Stage: stage, Reason: media.ReasonEngineFailure, Index: -1, Err: err}
	if se, ok := media.AsStageError(err); ok {
		f.Stage, f.Reason, f.Index = se.Stage, se.Reason, se.Index
	}
	o.enter(StateFailed)
	log.Printf("[Pipeline] job %s: %v", o.jobID, f)
	return f
}

// checkpoint fails stage with ReasonCancelled if ctx is done before it starts.
func (o *Orchestrator) checkpoint(ctx context.Context, stage media.Stage) error {
	if err := ctx.Err(); err != nil {
		reason := media.ReasonCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			reason = media.ReasonTimeout
		}
		return &media.StageError{Stage: stage, Reason: reason, Index: -1, Err: err}
	}
	return nil
}

// cleanup sweeps every intermediate still tracked. Removal errors are logged by
// the workspace and reported, never returned as the job's failure.
func (o *Orchestrator) cleanup() []error {
	if left := o.ws.Tracked(); len(left) > 0 {
		log.Printf("[Pipeline] job %s: removing %d intermediate file(s)", o.jobID, len(left))
	}
	o.ws.RemoveAll()
	return o.ws.CleanupErrors()
}

func (o *Orchestrator) segmentLength(req Request) float64 {
	if req.SegmentSeconds != 0 {
		return req.SegmentSeconds
	}
	return o.opts.SegmentSeconds
}

// Run executes the full assembly: acquire, probe, synthesize, segment and
// assemble. On success only the final artifact remains on disk; on failure
// nothing the job created remains.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res *Result) {
	start := time.Now()
	res = &Result{JobID: o.jobID}
	defer func() {
		res.CleanupErrors = o.cleanup()
		res.States = o.states
		res.Elapsed = time.Since(start)
	}()

	var (
		final *media.MediaAsset
		err   error
	)
	if strings.TrimSpace(req.Source) == "" {
		final, err = o.narrationOnly(ctx, req)
	} else {
		final, err = o.assemble(ctx, req)
	}
	if err != nil {
		res.Failure = o.fail(media.StageAssemble, err)
		return res
	}

	o.ws.Keep(final.Path)
	res.Artifact = final
	o.enter(StateCompleted)
	log.Printf("[Pipeline] job %s: completed %s (%.2fs) in %s", o.jobID, final.Path, final.DurationSeconds, time.Since(start).Round(time.Millisecond))
	return res
}

func (o *Orchestrator) assemble(ctx context.Context, req Request) (*media.MediaAsset, error) {
	length := o.segmentLength(req)
	if !(length > 0) {
		return nil, &media.StageError{Stage: media.StageSegment, Reason: media.ReasonInvalidLength, Index: -1,
			Err: fmt.Errorf("segment length must be positive, got %v", length)}
	}
	if strings.TrimSpace(req.Script) == "" {
		return nil, &media.StageError{Stage: media.StageSynthesize, Reason: media.ReasonEmptyInput, Index: -1,
			Err: errors.New("script is empty")}
	}

	source, err := o.acquireAndProbe(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	if err := o.checkpoint(ctx, media.StageSynthesize); err != nil {
		return nil, err
	}
	o.enter(StateSynthesizing)
	audio, err := o.deps.Synthesizer.Synthesize(ctx, o.ws, req.Script)
	if err != nil {
		return nil, err
	}

	if err := o.checkpoint(ctx, media.StageSegment); err != nil {
		return nil, err
	}
	o.enter(StateSegmenting)
	segments, err := o.deps.Segmenter.Segment(ctx, o.ws, source, length)
	if err != nil {
		return nil, err
	}
	o.ws.Release(source)
	log.Printf("[Pipeline] job %s: %d segment(s) of %.2fs", o.jobID, len(segments), length)

	if err := o.checkpoint(ctx, media.StageAssemble); err != nil {
		return nil, err
	}
	o.enter(StateAssembling)
	return o.deps.Assembler.Assemble(ctx, o.ws, segments, audio)
}

// acquireAndProbe returns a local source with a video stream and a known,
// positive duration. A file ffprobe cannot read, or one without video, fails
// as probe/unreadable. A probe that reads but yields a non-positive duration is
// reported as segment/unknown-duration so the Segmenter is never invoked.
func (o *Orchestrator) acquireAndProbe(ctx context.Context, source string) (*media.MediaAsset, error) {
	if err := o.checkpoint(ctx, media.StageAcquire); err != nil {
		return nil, err
	}
	o.enter(StateDownloading)
	asset, err := o.deps.Acquirer.Acquire(ctx, o.ws, source)
	if err != nil {
		return nil, err
	}

	if err := o.checkpoint(ctx, media.StageProbe); err != nil {
		return nil, err
	}
	o.enter(StateProbing)
	info, err := o.deps.Prober.Inspect(ctx, asset.Path)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo {
		return nil, &media.StageError{Stage: media.StageProbe, Reason: media.ReasonUnreadable, Index: -1,
			Err: fmt.Errorf("%s has no video stream", source)}
	}
	duration, err := o.deps.Prober.Probe(ctx, asset.Path)
	if err != nil {
		if errors.Is(err, media.ErrNonPositiveDuration) {
			return nil, &media.StageError{Stage: media.StageSegment, Reason: media.ReasonUnknownDuration, Index: -1, Err: err}
		}
		return nil, err
	}
	asset.DurationSeconds = duration
	log.Printf("[Pipeline] job %s: source is %.2fs", o.jobID, duration)
	return asset, nil
}

// narrationOnly synthesizes the script and lays it over a background clip as
// long as the narration.
func (o *Orchestrator) narrationOnly(ctx context.Context, req Request) (*media.MediaAsset, error) {
	if err := o.checkpoint(ctx, media.StageSynthesize); err != nil {
		return nil, err
	}
	o.enter(StateSynthesizing)
	audio, err := o.deps.Synthesizer.Synthesize(ctx, o.ws, req.Script)
	if err != nil {
		return nil, err
	}

	if err := o.checkpoint(ctx, media.StageAssemble); err != nil {
		return nil, err
	}
	o.enter(StateAssembling)
	background, err := o.deps.Assembler.RenderBackground(ctx, o.ws, audio.DurationSeconds)
	if err != nil {
		return nil, err
	}
	return o.deps.Assembler.Assemble(ctx, o.ws, []media.Segment{*background}, audio)
}

// Split acquires and segments the source, then hands each segment to publish
// in index order. Each segment file is deleted once published; on any failure
// every file the job created is deleted.
func (o *Orchestrator) Split(ctx context.Context, req Request, publish PublishFunc) (res *SplitResult) {
	start := time.Now()
	res = &SplitResult{JobID: o.jobID}
	defer func() {
		res.CleanupErrors = o.cleanup()
		res.States = o.states
		res.Elapsed = time.Since(start)
	}()

	locators, err := o.split(ctx, req, publish)
	if err != nil {
		res.Failure = o.fail(StagePublish, err)
		return res
	}

	res.Locators = locators
	o.enter(StateCompleted)
	log.Printf("[Pipeline] job %s: published %d segment(s) in %s", o.jobID, len(locators), time.Since(start).Round(time.Millisecond))
	return res
}

func (o *Orchestrator) split(ctx context.Context, req Request, publish PublishFunc) ([]string, error) {
	length := o.segmentLength(req)
	if !(length > 0) {
		return nil, &media.StageError{Stage: media.StageSegment, Reason: media.ReasonInvalidLength, Index: -1,
			Err: fmt.Errorf("segment length must be positive, got %v", length)}
	}
	if publish == nil {
		return nil, &media.StageError{Stage: StagePublish, Reason: ReasonPublishFailed, Index: -1, Err: errors.New("no publisher")}
	}

	source, err := o.acquireAndProbe(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	if err := o.checkpoint(ctx, media.StageSegment); err != nil {
		return nil, err
	}
	o.enter(StateSegmenting)
	segments, err := o.deps.Segmenter.Segment(ctx, o.ws, source, length)
	if err != nil {
		return nil, err
	}
	o.ws.Release(source)

	o.enter(StatePublishing)
	locators := make([]string, 0, len(segments))
	for _, seg := range segments {
		if err := o.checkpoint(ctx, StagePublish); err != nil {
			return nil, err
		}
		loc, err := publish(ctx, seg)
		o.ws.Release(&seg.File)
		if err != nil {
			reason := ReasonPublishFailed
			if errors.Is(err, context.Canceled) {
				reason = media.ReasonCancelled
			}
			return nil, &media.StageError{Stage: StagePublish, Reason: reason, Index: seg.Index, Err: err}
		}
		locators = append(locators, loc)
	}
	return locators, nil
}
