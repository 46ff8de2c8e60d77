package services

import (
	"bytes"
	"strings"

	"github.com/bobarin/reelforge/internal/media"
)

// ---------------------------------------------------------------------------
// TTSService: ElevenLabs, Cartesia, OpenAI and Gemini narration engines
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse = media.Speech

// TTSService is the interface that any TTS provider must implement.
type TTSService = media.TTSEngine

// estimateAudioDuration estimates duration based on text length and speed.
// Average narration pace is ~140 words per minute at speed 1.0.
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	words := len(bytes.Fields([]byte(text)))
	minutes := float64(words) / (140.0 * speed)
	return int(minutes * 60 * 1000)
}

// emotionKeywords maps descriptive words to delivery emotions. The first
// keyword found in the style wins.
var emotionKeywords = []struct{ keyword, emotion string }{
	{"energetic", "excited"},
	{"engaging", "enthusiastic"},
	{"mysterious", "mysterious"},
	{"serious", "calm"},
	{"authoritative", "confident"},
	{"dramatic", "intense"},
	{"calm", "calm"},
	{"peaceful", "peaceful"},
	{"excited", "excited"},
	{"happy", "happy"},
	{"sad", "sad"},
	{"angry", "angry"},
	{"scared", "scared"},
	{"confident", "confident"},
}

// parseEmotionFromStyle extracts an emotion from a voice style instruction.
func parseEmotionFromStyle(style string) string {
	style = strings.ToLower(style)
	for _, k := range emotionKeywords {
		if strings.Contains(style, k.keyword) {
			return k.emotion
		}
	}
	return "neutral"
}
