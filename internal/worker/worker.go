package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/bobarin/reelforge/internal/media"
	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/pipeline"
	"github.com/bobarin/reelforge/internal/queue"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the slice of the database the worker writes job progress to.
type Store interface {
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
	ClaimVideo(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateVideoStatus(ctx context.Context, id uuid.UUID, status models.VideoStatus) error
	CompleteVideo(ctx context.Context, id uuid.UUID, storagePath, finalURL string, durationSeconds float64) error
	CompleteSplit(ctx context.Context, id uuid.UUID, segmentURLs []string) error
	FailVideo(ctx context.Context, id uuid.UUID, status models.VideoStatus, stage, reason, message string) error
}

// JobSource feeds jobs and cancellation requests.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	SubscribeCancel(ctx context.Context) (<-chan uuid.UUID, error)
}

// Publisher stores finished files and returns where they can be fetched.
type Publisher interface {
	Put(ctx context.Context, localPath, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	GenerateStoragePath(videoID uuid.UUID, filename string) string
}

type Worker struct {
	store          Store
	jobs           JobSource
	publisher      Publisher
	deps           pipeline.Deps
	workDir        string
	segmentSeconds float64
	uploadSem      chan struct{} // Limits concurrent uploads across jobs

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

func New(
	store Store,
	jobs JobSource,
	publisher Publisher,
	deps pipeline.Deps,
	workDir string,
	segmentSeconds float64,
) *Worker {
	return &Worker{
		store:          store,
		jobs:           jobs,
		publisher:      publisher,
		deps:           deps,
		workDir:        workDir,
		segmentSeconds: segmentSeconds,
		uploadSem:      make(chan struct{}, 2),
		running:        make(map[uuid.UUID]context.CancelFunc),
	}
}

// uploadWithLimit wraps an upload call with a semaphore so parallel jobs do not
// saturate the storage endpoint.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start processes jobs from both queues with at most concurrency jobs in
// flight, and listens for cancellation requests. It returns when ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("[Worker] started with concurrency: %d", concurrency)

	cancels, err := w.jobs.SubscribeCancel(ctx)
	if err != nil {
		return err
	}

	slots := make(chan struct{}, concurrency)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for id := range cancels {
			if w.Cancel(id) {
				log.Printf("[Worker] cancellation requested for video %s", id)
			}
		}
		return nil
	})

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(gctx, queue.QueueAssemble, slots, w.handleAssemble)
			return nil
		})
		g.Go(func() error {
			w.processQueue(gctx, queue.QueueSplit, slots, w.handleSplit)
			return nil
		})
	}

	err = g.Wait()
	log.Println("[Worker] shutting down...")
	return err
}

func (w *Worker) processQueue(ctx context.Context, queueName string, slots chan struct{}, handler func(context.Context, *models.Video)) {
	for {
		select {
		case <-ctx.Done():
			return
		case slots <- struct{}{}:
		}

		job, err := w.jobs.Dequeue(ctx, queueName, 5*time.Second)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] error dequeuing from %s: %v", queueName, err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			<-slots
			continue
		}

		log.Printf("[Worker] processing job %s (type: %s, video: %s)", job.ID, job.Type, job.VideoID)
		w.Process(ctx, job, handler)
		<-slots
	}
}

// Process loads and claims the video for job and runs handler under a
// cancellable context. Videos already finished, cancelled or claimed are
// skipped.
func (w *Worker) Process(ctx context.Context, job *queue.Job, handler func(context.Context, *models.Video)) {
	video, err := w.store.GetVideo(ctx, job.VideoID)
	if err != nil {
		log.Printf("[Worker] failed to load video %s: %v", job.VideoID, err)
		return
	}
	if video.Status.Terminal() {
		log.Printf("[Worker] video %s is already %s, skipping", video.ID, video.Status)
		return
	}

	// Register before claiming so a cancel published once the claim lands
	// always finds the job.
	jobCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.running[video.ID] = cancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.running, video.ID)
		w.mu.Unlock()
		cancel()
	}()

	claimed, err := w.store.ClaimVideo(ctx, video.ID)
	if err != nil {
		log.Printf("[Worker] failed to claim video %s: %v", video.ID, err)
		return
	}
	if !claimed {
		log.Printf("[Worker] video %s was cancelled or taken before it started, skipping", video.ID)
		return
	}

	handler(jobCtx, video)
}

// Cancel stops the running job for id. It reports whether one was running here.
func (w *Worker) Cancel(id uuid.UUID) bool {
	w.mu.Lock()
	cancel, ok := w.running[id]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (w *Worker) handleAssemble(ctx context.Context, video *models.Video) {
	orch, err := w.orchestrator(video)
	if err != nil {
		w.recordFailure(video.ID, &pipeline.Failure{Stage: media.StageAcquire, Reason: media.ReasonEngineFailure, Index: -1, Err: err})
		return
	}

	res := orch.Run(ctx, requestFor(video))
	logCleanup(video.ID, res.CleanupErrors)
	if !res.OK() {
		w.recordFailure(video.ID, res.Failure)
		return
	}

	w.setStatus(video.ID, models.VideoStatusUploading)
	key := w.publisher.GenerateStoragePath(video.ID, "final.mp4")

	var url string
	err = w.uploadWithLimit(ctx, key, func() error {
		var putErr error
		url, putErr = w.publisher.Put(ctx, res.Artifact.Path, key)
		return putErr
	})
	if rmErr := os.Remove(res.Artifact.Path); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Printf("[Worker] video %s: failed to remove %s: %v", video.ID, res.Artifact.Path, rmErr)
	}
	if err != nil {
		w.recordFailure(video.ID, publishFailure(-1, err))
		return
	}

	if err := w.store.CompleteVideo(context.Background(), video.ID, key, url, res.Artifact.DurationSeconds); err != nil {
		log.Printf("[Worker] video %s: failed to record completion: %v", video.ID, err)
		if errors.Is(err, models.ErrFinished) {
			w.unpublish(video.ID, key)
		}
		return
	}
	log.Printf("[Worker] video %s completed in %s: %s", video.ID, res.Elapsed.Round(time.Millisecond), url)
}

func (w *Worker) handleSplit(ctx context.Context, video *models.Video) {
	orch, err := w.orchestrator(video)
	if err != nil {
		w.recordFailure(video.ID, &pipeline.Failure{Stage: media.StageAcquire, Reason: media.ReasonEngineFailure, Index: -1, Err: err})
		return
	}

	var published []string
	publish := func(ctx context.Context, seg media.Segment) (string, error) {
		key := w.publisher.GenerateStoragePath(video.ID, fmt.Sprintf("segment_%04d.mp4", seg.Index))
		var url string
		err := w.uploadWithLimit(ctx, key, func() error {
			var putErr error
			url, putErr = w.publisher.Put(ctx, seg.File.Path, key)
			return putErr
		})
		if err == nil {
			published = append(published, key)
		}
		return url, err
	}

	res := orch.Split(ctx, requestFor(video), publish)
	logCleanup(video.ID, res.CleanupErrors)
	if !res.OK() {
		// A failed split publishes nothing.
		w.unpublish(video.ID, published...)
		w.recordFailure(video.ID, res.Failure)
		return
	}

	if err := w.store.CompleteSplit(context.Background(), video.ID, res.Locators); err != nil {
		log.Printf("[Worker] video %s: failed to record split: %v", video.ID, err)
		if errors.Is(err, models.ErrFinished) {
			w.unpublish(video.ID, published...)
		}
		return
	}
	log.Printf("[Worker] video %s split into %d segment(s) in %s", video.ID, len(res.Locators), res.Elapsed.Round(time.Millisecond))
}

// unpublish removes objects uploaded for a job whose record can no longer
// point at them.
func (w *Worker) unpublish(id uuid.UUID, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := w.publisher.Delete(context.Background(), keys...); err != nil {
		log.Printf("[Worker] video %s: failed to remove %d published object(s): %v", id, len(keys), err)
	}
}

func (w *Worker) orchestrator(video *models.Video) (*pipeline.Orchestrator, error) {
	return pipeline.New(video.ID.String(), w.workDir, w.deps, pipeline.Options{
		SegmentSeconds: w.segmentSeconds,
		OnStateChange: func(s pipeline.State) {
			if status, ok := statusFor(s); ok {
				w.setStatus(video.ID, status)
			}
		},
	})
}

// statusFor maps in-flight pipeline states to the stored status. Terminal
// states are written by the handlers together with their outcome.
func statusFor(s pipeline.State) (models.VideoStatus, bool) {
	switch s {
	case pipeline.StateDownloading:
		return models.VideoStatusDownloading, true
	case pipeline.StateProbing:
		return models.VideoStatusProbing, true
	case pipeline.StateSynthesizing:
		return models.VideoStatusSynthesizing, true
	case pipeline.StateSegmenting:
		return models.VideoStatusSegmenting, true
	case pipeline.StateAssembling:
		return models.VideoStatusAssembling, true
	case pipeline.StatePublishing:
		return models.VideoStatusUploading, true
	}
	return "", false
}

func requestFor(video *models.Video) pipeline.Request {
	req := pipeline.Request{}
	if video.SourceURL != nil {
		req.Source = *video.SourceURL
	}
	if video.Script != nil {
		req.Script = *video.Script
	}
	if video.SegmentSeconds != nil {
		req.SegmentSeconds = *video.SegmentSeconds
	}
	return req
}

func publishFailure(index int, err error) *pipeline.Failure {
	reason := pipeline.ReasonPublishFailed
	if errors.Is(err, context.Canceled) {
		reason = media.ReasonCancelled
	}
	return &pipeline.Failure{Stage: pipeline.StagePublish, Reason: reason, Index: index, Err: err}
}

// Status writes use a fresh context so a cancelled job can still record why.
func (w *Worker) setStatus(id uuid.UUID, status models.VideoStatus) {
	if err := w.store.UpdateVideoStatus(context.Background(), id, status); err != nil {
		log.Printf("[Worker] video %s: failed to set status %s: %v", id, status, err)
	}
}

func (w *Worker) recordFailure(id uuid.UUID, f *pipeline.Failure) {
	status := models.VideoStatusFailed
	if f.Cancelled() {
		status = models.VideoStatusCancelled
	}
	if f.Transient() {
		log.Printf("[Worker] video %s %s (transient, may be resubmitted): %v", id, status, f)
	} else {
		log.Printf("[Worker] video %s %s: %v", id, status, f)
	}
	if err := w.store.FailVideo(context.Background(), id, status, string(f.Stage), string(f.Reason), f.Error()); err != nil && !errors.Is(err, models.ErrFinished) {
		log.Printf("[Worker] video %s: failed to record failure: %v", id, err)
	}
}

func logCleanup(id uuid.UUID, errs []error) {
	for _, err := range errs {
		log.Printf("[Worker] video %s: cleanup: %v", id, err)
	}
}
