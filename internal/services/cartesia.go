package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	CartesiaAPIVersion = "2024-06-10"
	CartesiaDefaultURL = "https://api.cartesia.ai"

	// DefaultVoiceID is used when CARTESIA_VOICE_ID is unset.
	DefaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"

	cartesiaModel  = "sonic-english"
	cartesiaSpeed  = 0.85
	cartesiaVolume = 1.4
)

// CartesiaService narrates through the Cartesia /tts/bytes endpoint.
type CartesiaService struct {
	apiKey  string
	apiURL  string
	voiceID string
	client  *http.Client
}

var _ TTSService = (*CartesiaService)(nil)

// NewCartesiaService creates a Cartesia service. Empty apiURL or voiceID fall back to defaults.
func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if apiURL == "" {
		apiURL = CartesiaDefaultURL
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	return &CartesiaService{
		apiKey:  apiKey,
		apiURL:  apiURL,
		voiceID: voiceID,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type cartesiaRequest struct {
	ModelID      string                   `json:"model_id"`
	Transcript   string                   `json:"transcript"`
	Voice        cartesiaVoice            `json:"voice"`
	Language     string                   `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat     `json:"output_format"`
	Config       cartesiaGenerationConfig `json:"generation_config"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Volume  float64 `json:"volume"` // 0.5 to 2.0
	Speed   float64 `json:"speed"`  // 0.6 to 1.5
	Emotion string  `json:"emotion,omitempty"`
}

// GenerateSpeech returns MP3 narration. The delivery emotion is derived from
// voiceStyle; speed and volume are fixed so a given configuration always
// produces the same request.
func (s *CartesiaService) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error) {
	body := cartesiaRequest{
		ModelID:      cartesiaModel,
		Transcript:   text,
		Voice:        cartesiaVoice{Mode: "id", ID: s.voiceID},
		Language:     "en",
		OutputFormat: cartesiaOutputFormat{Container: "mp3", SampleRate: 44100, BitRate: 192000},
		Config: cartesiaGenerationConfig{
			Volume:  cartesiaVolume,
			Speed:   cartesiaSpeed,
			Emotion: parseEmotionFromStyle(voiceStyle),
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/tts/bytes", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", CartesiaAPIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, msg)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	log.Printf("[Cartesia] Speech generated (voice=%s, emotion=%s, %d bytes)", s.voiceID, body.Config.Emotion, len(audio))

	return &TTSResponse{
		AudioData:  audio,
		DurationMs: estimateAudioDuration(text, cartesiaSpeed),
		Format:     "mp3",
	}, nil
}
