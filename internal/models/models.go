package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type VideoKind string

const (
	VideoKindAssemble  VideoKind = "assemble"  // source + narration
	VideoKindNarration VideoKind = "narration" // narration over a plain background
	VideoKindSplit     VideoKind = "split"     // source cut into published segments
)

type VideoStatus string

const (
	VideoStatusPending      VideoStatus = "pending"
	VideoStatusDownloading  VideoStatus = "downloading"
	VideoStatusProbing      VideoStatus = "probing"
	VideoStatusSynthesizing VideoStatus = "synthesizing"
	VideoStatusSegmenting   VideoStatus = "segmenting"
	VideoStatusAssembling   VideoStatus = "assembling"
	VideoStatusUploading    VideoStatus = "uploading"
	VideoStatusCompleted    VideoStatus = "completed"
	VideoStatusFailed       VideoStatus = "failed"
	VideoStatusCancelled    VideoStatus = "cancelled"
)

// ErrFinished is returned when a write targets a video that already reached a
// terminal status.
var ErrFinished = errors.New("video already finished")

// Terminal reports whether no further transitions can happen.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed || s == VideoStatusCancelled
}

// Valid reports whether s is a known status.
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusDownloading, VideoStatusProbing, VideoStatusSynthesizing,
		VideoStatusSegmenting, VideoStatusAssembling, VideoStatusUploading,
		VideoStatusCompleted, VideoStatusFailed, VideoStatusCancelled:
		return true
	}
	return false
}

// StringList is a JSONB array of strings, used for ordered segment URLs.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Models

// Video is one job record: an assembly, a narration-only render, or a split.
type Video struct {
	ID             uuid.UUID   `json:"id"`
	Kind           VideoKind   `json:"kind"`
	SourceURL      *string     `json:"source_url,omitempty"`
	Script         *string     `json:"script,omitempty"`
	SegmentSeconds *float64    `json:"segment_seconds,omitempty"` // nil = server default
	Status         VideoStatus `json:"status"`
	// Set when Status is failed or cancelled
	FailureStage  *string `json:"failure_stage,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	// Outputs
	StoragePath     *string    `json:"-"`
	FinalURL        *string    `json:"final_url,omitempty"`
	SegmentURLs     StringList `json:"segment_urls,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DTOs for API requests and responses

type CreateVideoRequest struct {
	SourceURL      *string  `json:"source_url,omitempty"` // Omit for a narration-only video
	Script         string   `json:"script"`
	SegmentSeconds *float64 `json:"segment_seconds,omitempty"` // Default: DEFAULT_SEGMENT_SECONDS
}

type CreateSplitRequest struct {
	SourceURL      string   `json:"source_url"`
	SegmentSeconds *float64 `json:"segment_seconds,omitempty"`
}

type CreateVideoResponse struct {
	VideoID uuid.UUID   `json:"video_id"`
	Kind    VideoKind   `json:"kind"`
	Status  VideoStatus `json:"status"`
}

type ListVideosResponse struct {
	Videos []Video `json:"videos"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
