package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobarin/reelforge/internal/db"
	"github.com/bobarin/reelforge/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Store is the video persistence the handlers need.
type Store interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
	ListVideos(ctx context.Context, status string, limit, offset int) ([]models.Video, error)
	CountVideos(ctx context.Context, status string) (int, error)
	CancelPending(ctx context.Context, id uuid.UUID) (bool, error)
}

// Queue accepts new jobs and cancellation requests.
type Queue interface {
	EnqueueAssemble(ctx context.Context, videoID uuid.UUID) error
	EnqueueSplit(ctx context.Context, videoID uuid.UUID) error
	PublishCancel(ctx context.Context, videoID uuid.UUID) error
}

// Signer issues temporary download links.
type Signer interface {
	GetSignedURL(ctx context.Context, path string, expiresIn int) (string, error)
}

type Handler struct {
	db      Store
	queue   Queue
	storage Signer
}

func NewHandler(store Store, q Queue, signer Signer) *Handler {
	return &Handler{
		db:      store,
		queue:   q,
		storage: signer,
	}
}

// CreateVideo handles POST /v1/videos. Without source_url the narration is
// rendered over a plain background.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.CreateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate
	script := strings.TrimSpace(req.Script)
	if script == "" {
		respondError(w, http.StatusBadRequest, "Script is required")
		return
	}
	if req.SegmentSeconds != nil && !(*req.SegmentSeconds > 0) {
		respondError(w, http.StatusBadRequest, "segment_seconds must be positive")
		return
	}

	video := &models.Video{
		ID:             uuid.New(),
		Kind:           models.VideoKindNarration,
		Script:         &script,
		SegmentSeconds: req.SegmentSeconds,
		Status:         models.VideoStatusPending,
	}
	if req.SourceURL != nil && strings.TrimSpace(*req.SourceURL) != "" {
		src := strings.TrimSpace(*req.SourceURL)
		video.SourceURL = &src
		video.Kind = models.VideoKindAssemble
	}

	if err := h.db.CreateVideo(r.Context(), video); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create video")
		return
	}

	if err := h.queue.EnqueueAssemble(r.Context(), video.ID); err != nil {
		log.Printf("[API] failed to enqueue video %s: %v", video.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateVideoResponse{
		VideoID: video.ID,
		Kind:    video.Kind,
		Status:  video.Status,
	})
}

// CreateSplit handles POST /v1/splits
func (h *Handler) CreateSplit(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	src := strings.TrimSpace(req.SourceURL)
	if src == "" {
		respondError(w, http.StatusBadRequest, "source_url is required")
		return
	}
	if req.SegmentSeconds != nil && !(*req.SegmentSeconds > 0) {
		respondError(w, http.StatusBadRequest, "segment_seconds must be positive")
		return
	}

	video := &models.Video{
		ID:             uuid.New(),
		Kind:           models.VideoKindSplit,
		SourceURL:      &src,
		SegmentSeconds: req.SegmentSeconds,
		Status:         models.VideoStatusPending,
	}

	if err := h.db.CreateVideo(r.Context(), video); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create video")
		return
	}

	if err := h.queue.EnqueueSplit(r.Context(), video.ID); err != nil {
		log.Printf("[API] failed to enqueue split %s: %v", video.ID, err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateVideoResponse{
		VideoID: video.ID,
		Kind:    video.Kind,
		Status:  video.Status,
	})
}

// ListVideos handles GET /v1/videos
// Query params:
//   - status: filter by video status
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" && !models.VideoStatus(statusFilter).Valid() {
		respondError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountVideos(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count videos")
		return
	}

	videos, err := h.db.ListVideos(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	respondJSON(w, http.StatusOK, models.ListVideosResponse{
		Videos: videos,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetVideo handles GET /v1/videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, video)
}

// GetVideoDownload handles GET /v1/videos/{id}/download
func (h *Handler) GetVideoDownload(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	if video.StoragePath == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	// Get signed URL (valid for 1 hour)
	signedURL, err := h.storage.GetSignedURL(r.Context(), *video.StoragePath, 3600)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate download URL")
		return
	}

	http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
}

// CancelVideo handles POST /v1/videos/{id}/cancel. A video no worker has
// claimed is cancelled immediately; a claimed one is signalled and the worker
// records the outcome.
func (h *Handler) CancelVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	if video.Status.Terminal() {
		respondError(w, http.StatusConflict, "Video is already "+string(video.Status))
		return
	}

	cancelled, err := h.db.CancelPending(r.Context(), video.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to cancel video")
		return
	}
	if cancelled {
		// A worker may have dequeued the job before its claim; the signal
		// stops it even though the record is already final.
		if err := h.queue.PublishCancel(r.Context(), video.ID); err != nil {
			log.Printf("[API] video %s: failed to signal cancellation: %v", video.ID, err)
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": string(models.VideoStatusCancelled)})
		return
	}

	if err := h.queue.PublishCancel(r.Context(), video.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to signal cancellation")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) loadVideo(w http.ResponseWriter, r *http.Request) (*models.Video, bool) {
	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid video ID")
		return nil, false
	}

	video, err := h.db.GetVideo(r.Context(), videoID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Video not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get video")
		return nil, false
	}
	return video, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
