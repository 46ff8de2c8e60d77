package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Per attempt; final renders can be several hundred MB.
	uploadTimeout = 10 * time.Minute

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	retryBase  time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		retryBase:  baseRetryDelay,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// UploadFile streams a local file to storagePath with retries and exponential
// backoff. The file is reopened on every attempt so large renders never sit in
// memory.
func (s *Storage) UploadFile(ctx context.Context, storagePath, localPath string, contentType string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", localPath, err)
	}

	return s.upload(ctx, storagePath, contentType, info.Size(), func() (io.ReadCloser, error) {
		return os.Open(localPath)
	})
}

// Put uploads a local artifact under key and returns its public URL.
func (s *Storage) Put(ctx context.Context, localPath, key string) (string, error) {
	if err := s.UploadFile(ctx, key, localPath, contentTypeFor(localPath)); err != nil {
		return "", err
	}
	return s.GetPublicURL(key), nil
}

// upload issues PUT with Content-Length and x-upsert.
func (s *Storage) upload(ctx context.Context, path, contentType string, size int64, open func() (io.ReadCloser, error)) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, path)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Printf("[Storage] Upload retry %d/%d for %s (waiting %v)...", attempt, maxRetries, path, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := open()
		if err != nil {
			return fmt.Errorf("failed to open upload body: %w", err)
		}

		uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, body)
		if err != nil {
			body.Close()
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.ContentLength = size
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if ctx.Err() != nil {
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			}
			if isRetryableError(err) {
				log.Printf("[Storage] Upload attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return lastErr
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			if attempt > 0 {
				log.Printf("[Storage] Upload succeeded on attempt %d for %s", attempt+1, path)
			}
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Storage] Upload attempt %d returned status %d (retryable): %s", attempt+1, resp.StatusCode, truncate(string(respBody), 200))
			continue
		}

		// 400, 401, 403, 404, 413 and friends
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// Delete removes objects from the bucket. Missing objects are not an error.
func (s *Storage) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s", s.url, s.Bucket)

	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, path)
}

// GetSignedURL creates a signed URL for temporary access
func (s *Storage) GetSignedURL(ctx context.Context, path string, expiresIn int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, path)

	body := fmt.Sprintf(`{"expiresIn": %d}`, expiresIn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}

	return s.url + "/storage/v1" + result.SignedURL, nil
}

// GenerateStoragePath creates the object key for a video's artifact.
func (s *Storage) GenerateStoragePath(videoID uuid.UUID, filename string) string {
	return path.Join(videoID.String(), filename)
}

func contentTypeFor(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// retryDelay is base * 2^(attempt-1) capped at maxRetryDelay, plus up to 25% jitter.
func (s *Storage) retryDelay(attempt int) time.Duration {
	delay := float64(s.retryBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
