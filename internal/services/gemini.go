package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

const (
	geminiTTSModel     = "gemini-2.5-flash-preview-tts"
	geminiDefaultVoice = "Kore"

	// Gemini speech output is 16-bit little-endian mono PCM at 24 kHz.
	geminiSampleRate    = 24000
	geminiChannels      = 1
	geminiBitsPerSample = 16
)

// GeminiService synthesizes narration with the Gemini native speech model.
// Unlike the other providers it accepts the voice style as a natural-language
// instruction.
type GeminiService struct {
	apiKey string
	model  string
	voice  string
}

var _ TTSService = (*GeminiService)(nil)

func NewGeminiService(apiKey, voice string) *GeminiService {
	if voice == "" {
		voice = geminiDefaultVoice
	}
	return &GeminiService{apiKey: apiKey, model: geminiTTSModel, voice: voice}
}

// GenerateSpeech returns WAV narration wrapping the PCM stream Gemini produces.
func (s *GeminiService) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	}

	log.Printf("[Gemini] Generating speech (model=%s, voice=%s, textLen=%d)", s.model, s.voice, len(text))

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(buildSpeechPrompt(text, voiceStyle)), config)
	if err != nil {
		return nil, fmt.Errorf("Gemini speech request failed: %w", err)
	}

	pcm := extractInlineAudio(resp)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("Gemini returned no audio")
	}

	durationMs := len(pcm) * 1000 / (geminiSampleRate * geminiChannels * geminiBitsPerSample / 8)
	log.Printf("[Gemini] Speech generated (%d PCM bytes, %dms)", len(pcm), durationMs)

	return &TTSResponse{
		AudioData:  wrapPCMAsWAV(pcm, geminiSampleRate, geminiChannels, geminiBitsPerSample),
		DurationMs: durationMs,
		Format:     "wav",
	}, nil
}

func buildSpeechPrompt(text, voiceStyle string) string {
	voiceStyle = strings.TrimSpace(voiceStyle)
	if voiceStyle == "" {
		return text
	}
	return fmt.Sprintf("Read the following in a %s voice:\n\n%s", voiceStyle, text)
}

func extractInlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	var out []byte
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil && p.InlineData != nil {
				out = append(out, p.InlineData.Data...)
			}
		}
	}
	return out
}

// wrapPCMAsWAV prefixes raw PCM samples with a canonical 44-byte RIFF header.
func wrapPCMAsWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
