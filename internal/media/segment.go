package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// residualFraction bounds, relative to duration, the tail that is treated as
	// floating-point noise from i*length and folded into the previous interval.
	// Any longer tail becomes its own segment, however short.
	residualFraction = 1e-9

	// maxSegments caps how many intervals a single source may be cut into.
	maxSegments = 250000
)

// Boundaries partitions [0, duration) into ascending contiguous intervals of
// length seconds. The last interval is clamped to duration and may be shorter,
// never longer. A duration shorter than length yields exactly one interval.
func Boundaries(duration, length float64) ([]Boundary, error) {
	if math.IsNaN(length) || length <= 0 || math.IsInf(length, 0) {
		return nil, newStageError(StageSegment, ReasonInvalidLength, fmt.Errorf("segment length %v must be > 0", length))
	}
	if math.IsNaN(duration) || duration <= 0 || math.IsInf(duration, 0) {
		return nil, newStageError(StageSegment, ReasonUnknownDuration, fmt.Errorf("source duration %v is unknown", duration))
	}
	if n := math.Ceil(duration / length); n > maxSegments {
		return nil, newStageError(StageSegment, ReasonInvalidLength,
			fmt.Errorf("segment length %v would cut %.0fs into %.0f segments (max %d)", length, duration, n, maxSegments))
	}

	var out []Boundary
	for i := 0; ; i++ {
		// Multiply rather than accumulate so error does not build up over long sources.
		start := float64(i) * length
		if start >= duration {
			break
		}
		if i > 0 && duration-start <= residualFraction*duration {
			out[len(out)-1].End = duration
			break
		}
		out = append(out, Boundary{
			Index: i,
			Start: start,
			End:   math.Min(start+length, duration),
		})
	}
	return out, nil
}

// Segmenter cuts a probed source into per-boundary files.
type Segmenter struct {
	runner      CommandRunner
	tools       Tools
	timeout     time.Duration
	concurrency int
}

// NewSegmenter returns a Segmenter. concurrency > 1 extracts segments in
// parallel; the result order is still the boundary order.
func NewSegmenter(runner CommandRunner, tools Tools, timeout time.Duration, concurrency int) *Segmenter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Segmenter{runner: runner, tools: tools, timeout: timeout, concurrency: concurrency}
}

// Segment extracts every boundary of source into ws. It is all-or-nothing: on
// any failure the segments produced so far are removed and the failing index
// is reported in the StageError.
func (s *Segmenter) Segment(ctx context.Context, ws *Workspace, source *MediaAsset, length float64) ([]Segment, error) {
	if source == nil || !source.Probed() {
		return nil, newStageError(StageSegment, ReasonUnknownDuration, errors.New("source must be probed before segmenting"))
	}

	bounds, err := Boundaries(source.DurationSeconds, length)
	if err != nil {
		return nil, err
	}

	log.Printf("[FFmpeg] job %s: cutting %.2fs source into %d segment(s) of %.2fs", ws.JobID(), source.DurationSeconds, len(bounds), length)

	if s.concurrency == 1 || len(bounds) == 1 {
		return s.extractSequential(ctx, ws, source.Path, bounds)
	}
	return s.extractParallel(ctx, ws, source.Path, bounds)
}

func (s *Segmenter) extractSequential(ctx context.Context, ws *Workspace, src string, bounds []Boundary) ([]Segment, error) {
	segments := make([]Segment, 0, len(bounds))
	for _, b := range bounds {
		seg, err := s.extract(ctx, ws, src, b)
		if err != nil {
			for i := range segments {
				ws.Remove(segments[i].File.Path)
			}
			return nil, err
		}
		segments = append(segments, *seg)
	}
	return segments, nil
}

// extractParallel fans extraction out with errgroup; the first failure cancels
// the in-flight siblings through the group context, and queued ones never start.
func (s *Segmenter) extractParallel(ctx context.Context, ws *Workspace, src string, bounds []Boundary) ([]Segment, error) {
	results := make([]*Segment, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, b := range bounds {
		b := b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seg, err := s.extract(gctx, ws, src, b)
			if err != nil {
				return err
			}
			results[b.Index] = seg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, seg := range results {
			if seg != nil {
				ws.Remove(seg.File.Path)
			}
		}
		return nil, err
	}

	segments := make([]Segment, len(results))
	for i, seg := range results {
		segments[i] = *seg
	}
	return segments, nil
}

func (s *Segmenter) extract(ctx context.Context, ws *Workspace, src string, b Boundary) (*Segment, error) {
	out := ws.Path(fmt.Sprintf("seg_%04d.mp4", b.Index))

	args := []string{
		"-y",
		"-ss", formatSeconds(b.Start),
		"-i", src,
		"-t", formatSeconds(b.Duration()),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		out,
	}

	if _, err := s.runner.Run(ctx, s.timeout, s.tools.ffmpeg(), args...); err != nil {
		ws.Remove(out)
		se := commandFailure(StageSegment, ReasonExtractionFailed,
			fmt.Errorf("extract [%s, %s): %w", formatSeconds(b.Start), formatSeconds(b.End), err))
		se.Index = b.Index
		return nil, se
	}

	return &Segment{
		Boundary: b,
		File: MediaAsset{
			Path:            out,
			Kind:            KindVideo,
			DurationSeconds: b.Duration(),
			Owned:           true,
		},
	}, nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
