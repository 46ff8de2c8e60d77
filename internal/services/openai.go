package services

import (
	"context"
	"fmt"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIDefaultTTSModel = "tts-1-hd"
	openAIDefaultVoice    = "onyx"
	openAISpeechSpeed     = 0.95
)

// OpenAIService synthesizes narration through the OpenAI speech endpoint.
type OpenAIService struct {
	client *openai.Client
	model  string
	voice  string
}

var _ TTSService = (*OpenAIService)(nil)

func NewOpenAIService(apiKey, voice string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), voice)
}

// NewOpenAIServiceWithConfig allows pointing the client at a different base URL.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, voice string) *OpenAIService {
	if voice == "" {
		voice = openAIDefaultVoice
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  openAIDefaultTTSModel,
		voice:  voice,
	}
}

// GenerateSpeech returns MP3 narration. The speech endpoint takes no style
// hint, so voiceStyle only selects a slightly slower pace for calm deliveries.
func (s *OpenAIService) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error) {
	speed := openAISpeechSpeed
	if emotion := parseEmotionFromStyle(voiceStyle); emotion == "calm" || emotion == "peaceful" {
		speed = 0.85
	}

	log.Printf("[OpenAI] Generating speech (model=%s, voice=%s, textLen=%d)", s.model, s.voice, len(text))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI speech request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI audio response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("OpenAI returned empty audio")
	}

	durationMs := estimateAudioDuration(text, speed)
	log.Printf("[OpenAI] Speech generated (%d bytes, estimated %dms)", len(audioData), durationMs)

	return &TTSResponse{
		AudioData:  audioData,
		DurationMs: durationMs,
		Format:     "mp3",
	}, nil
}
