package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a video id has no record.
var ErrNotFound = errors.New("video not found")

const videoColumns = `
	id, kind, source_url, script, segment_seconds, status,
	failure_stage, failure_reason, error_message,
	storage_path, final_url, segment_urls, duration_seconds,
	started_at, finished_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner, v *models.Video) error {
	return row.Scan(
		&v.ID, &v.Kind, &v.SourceURL, &v.Script, &v.SegmentSeconds, &v.Status,
		&v.FailureStage, &v.FailureReason, &v.ErrorMessage,
		&v.StoragePath, &v.FinalURL, &v.SegmentURLs, &v.DurationSeconds,
		&v.StartedAt, &v.FinishedAt, &v.CreatedAt, &v.UpdatedAt,
	)
}

func (db *DB) CreateVideo(ctx context.Context, v *models.Video) error {
	query := `
		INSERT INTO videos (
			id, kind, source_url, script, segment_seconds, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		v.ID, v.Kind, v.SourceURL, v.Script, v.SegmentSeconds, v.Status,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (db *DB) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	v := &models.Video{}
	err := scanVideo(db.QueryRowContext(ctx, query, id), v)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return v, nil
}

// ListVideos returns videos ordered by creation date (newest first), with an
// optional status filter.
func (db *DB) ListVideos(ctx context.Context, status string, limit, offset int) ([]models.Video, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `SELECT ` + videoColumns + ` FROM videos`

	if status != "" {
		query := baseSelect + ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		var v models.Video
		if err := scanVideo(rows, &v); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}

// CountVideos returns the total number of videos, optionally filtered by status.
func (db *DB) CountVideos(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count)
	return count, err
}

// UpdateVideoStatus moves a non-terminal video to status. The first move out
// of pending stamps started_at.
func (db *DB) UpdateVideoStatus(ctx context.Context, id uuid.UUID, status models.VideoStatus) error {
	query := `
		UPDATE videos
		SET status = $1,
		    started_at = COALESCE(started_at, CASE WHEN $1 <> 'pending' THEN NOW() END),
		    updated_at = NOW()
		WHERE id = $2 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

// ClaimVideo marks a pending video as taken by a worker. It reports false when
// the video was cancelled or claimed first.
func (db *DB) ClaimVideo(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE videos
		SET started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND started_at IS NULL
	`
	return db.execChanged(ctx, query, id)
}

// CancelPending marks a video cancelled if no worker has claimed it yet.
// It reports whether the row was changed.
func (db *DB) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE videos
		SET status = $1, failure_reason = 'cancelled', finished_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = 'pending' AND started_at IS NULL
	`
	return db.execChanged(ctx, query, models.VideoStatusCancelled, id)
}

// The terminal writes below only apply to unfinished rows and return
// models.ErrFinished otherwise.

func (db *DB) CompleteVideo(ctx context.Context, id uuid.UUID, storagePath, finalURL string, durationSeconds float64) error {
	query := `
		UPDATE videos
		SET status = $1, storage_path = $2, final_url = $3, duration_seconds = $4,
		    finished_at = NOW(), updated_at = NOW()
		WHERE id = $5 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	return db.execFinal(ctx, query, models.VideoStatusCompleted, storagePath, finalURL, durationSeconds, id)
}

func (db *DB) CompleteSplit(ctx context.Context, id uuid.UUID, segmentURLs []string) error {
	query := `
		UPDATE videos
		SET status = $1, segment_urls = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	return db.execFinal(ctx, query, models.VideoStatusCompleted, models.StringList(segmentURLs), id)
}

// FailVideo records a terminal failure. status is failed or cancelled.
func (db *DB) FailVideo(ctx context.Context, id uuid.UUID, status models.VideoStatus, stage, reason, message string) error {
	query := `
		UPDATE videos
		SET status = $1, failure_stage = $2, failure_reason = $3, error_message = $4,
		    finished_at = NOW(), updated_at = NOW()
		WHERE id = $5 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	return db.execFinal(ctx, query, status, stage, reason, message, id)
}

func (db *DB) execChanged(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) execFinal(ctx context.Context, query string, args ...interface{}) error {
	changed, err := db.execChanged(ctx, query, args...)
	if err != nil {
		return err
	}
	if !changed {
		return models.ErrFinished
	}
	return nil
}
