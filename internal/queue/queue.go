package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueAssemble = "queue:assemble_video"
	QueueSplit    = "queue:split_video"

	// ChannelCancel carries video ids whose running job should stop.
	ChannelCancel = "channel:cancel_video"
)

const (
	JobTypeAssemble = "assemble_video"
	JobTypeSplit    = "split_video"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	VideoID   uuid.UUID `json:"video_id"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout for the next job. A nil job with a nil error
// means the queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeJob(result[1])
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.VideoID == uuid.Nil {
		return nil, fmt.Errorf("job %s has no video id", job.ID)
	}
	return &job, nil
}

// EnqueueAssemble enqueues an assembly or narration-only job.
func (q *Queue) EnqueueAssemble(ctx context.Context, videoID uuid.UUID) error {
	return q.Enqueue(ctx, QueueAssemble, &Job{
		ID:      uuid.New(),
		Type:    JobTypeAssemble,
		VideoID: videoID,
	})
}

// EnqueueSplit enqueues a split-and-publish job.
func (q *Queue) EnqueueSplit(ctx context.Context, videoID uuid.UUID) error {
	return q.Enqueue(ctx, QueueSplit, &Job{
		ID:      uuid.New(),
		Type:    JobTypeSplit,
		VideoID: videoID,
	})
}

// PublishCancel asks whichever worker runs videoID to stop it.
func (q *Queue) PublishCancel(ctx context.Context, videoID uuid.UUID) error {
	return q.client.Publish(ctx, ChannelCancel, videoID.String()).Err()
}

// SubscribeCancel delivers cancelled video ids until ctx is done. Malformed
// payloads are dropped.
func (q *Queue) SubscribeCancel(ctx context.Context) (<-chan uuid.UUID, error) {
	sub := q.client.Subscribe(ctx, ChannelCancel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelCancel, err)
	}

	out := make(chan uuid.UUID)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				id, err := uuid.Parse(msg.Payload)
				if err != nil {
					continue
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
