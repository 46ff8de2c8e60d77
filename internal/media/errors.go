package media

import (
	"context"
	"errors"
	"fmt"
)

// Stage names a step of the assembly pipeline. It is the first half of every
// failure the pipeline reports.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageProbe      Stage = "probe"
	StageSynthesize Stage = "synthesize"
	StageSegment    Stage = "segment"
	StageAssemble   Stage = "assemble"
)

// Reason is the machine-readable cause of a stage failure.
type Reason string

const (
	// Acquire
	ReasonUnsupportedSource Reason = "unsupported-source"
	ReasonNetwork           Reason = "network"
	ReasonExtractionFailed  Reason = "extraction-failed" // also used by segment extraction

	// Probe
	ReasonUnreadable Reason = "unreadable"

	// Synthesize
	ReasonEmptyInput    Reason = "empty-input"
	ReasonEngineFailure Reason = "engine-failure"

	// Segment
	ReasonUnknownDuration Reason = "unknown-duration"
	ReasonInvalidLength   Reason = "invalid-length"

	// Assemble
	ReasonConcat Reason = "concat"
	ReasonMux    Reason = "mux"

	// Any stage
	ReasonTimeout   Reason = "timeout"
	ReasonCancelled Reason = "cancelled"
)

var (
	// ErrTimeout is wrapped by a CommandRunner when a subprocess exceeds its deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrNonPositiveDuration is returned when a probe yields a duration <= 0.
	ErrNonPositiveDuration = errors.New("duration is not positive")

	// ErrUnsupportedSource is wrapped by a Downloader when no extractor recognises the URL.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrNetwork is wrapped by a Downloader when the source was reachable in
	// principle but the transfer failed.
	ErrNetwork = errors.New("network failure")
)

// StageError is the typed failure every pipeline component returns.
type StageError struct {
	Stage  Stage
	Reason Reason
	// Index is the segment ordinal for per-segment failures, -1 otherwise.
	Index int
	Err   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Reason)
	if e.Index >= 0 {
		msg += fmt.Sprintf(" (segment %d)", e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient reports whether a retry by the caller could reasonably succeed.
// Only network and site-extraction failures during acquisition qualify.
func (e *StageError) Transient() bool {
	return e.Stage == StageAcquire && (e.Reason == ReasonNetwork || e.Reason == ReasonExtractionFailed)
}

func newStageError(stage Stage, reason Reason, err error) *StageError {
	return &StageError{Stage: stage, Reason: reason, Index: -1, Err: err}
}

// commandFailure classifies a CommandRunner error. Timeouts and cancellation
// override the stage's own reason so callers can tell them apart.
func commandFailure(stage Stage, fallback Reason, err error) *StageError {
	switch {
	case errors.Is(err, ErrTimeout):
		return newStageError(stage, ReasonTimeout, err)
	case errors.Is(err, context.Canceled):
		return newStageError(stage, ReasonCancelled, err)
	default:
		return newStageError(stage, fallback, err)
	}
}

// AsStageError extracts the outermost StageError from err.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
