// Package app builds the media pipeline from configuration. Both the API
// server and the command line tool use it.
package app

import (
	"fmt"
	"log"

	"github.com/bobarin/reelforge/internal/config"
	"github.com/bobarin/reelforge/internal/media"
	"github.com/bobarin/reelforge/internal/pipeline"
	"github.com/bobarin/reelforge/internal/services"
)

// NewTTS returns the engine for cfg.TTSProvider.
func NewTTS(cfg *config.Config) (media.TTSEngine, error) {
	switch cfg.TTSProvider {
	case config.TTSProviderElevenLabs:
		log.Printf("[TTS] provider: ElevenLabs (voice: %s)", orDefault(cfg.ElevenLabsVoiceID))
		return services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID), nil
	case config.TTSProviderCartesia:
		log.Printf("[TTS] provider: Cartesia (voice: %s)", orDefault(cfg.CartesiaVoiceID))
		return services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID), nil
	case config.TTSProviderOpenAI:
		log.Printf("[TTS] provider: OpenAI (voice: %s)", orDefault(cfg.OpenAIVoice))
		return services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIVoice), nil
	case config.TTSProviderGemini:
		log.Printf("[TTS] provider: Gemini (voice: %s)", orDefault(cfg.GeminiVoice))
		return services.NewGeminiService(cfg.GeminiKey, cfg.GeminiVoice), nil
	case "":
		return nil, fmt.Errorf("no TTS provider configured")
	}
	return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
}

// NewDeps wires the pipeline stages over real ffmpeg, ffprobe and yt-dlp.
// tts may be nil for jobs that never narrate (split, probe).
func NewDeps(cfg *config.Config, tts media.TTSEngine) pipeline.Deps {
	runner := services.NewExecRunner(cfg.VerboseCommands)
	tools := media.Tools{FFmpeg: cfg.FFmpegPath, FFprobe: cfg.FFprobePath}
	prober := media.NewProber(runner, tools, cfg.CommandTimeout)
	downloader := services.NewYTDLP(runner, cfg.YTDLPPath, cfg.DownloadTimeout)

	deps := pipeline.Deps{
		Acquirer:  media.NewAcquirer(downloader, runner, tools, cfg.CommandTimeout, cfg.NormalizeSource),
		Prober:    prober,
		Segmenter: media.NewSegmenter(runner, tools, cfg.CommandTimeout, cfg.ExtractConcurrency),
		Assembler: media.NewAssembler(runner, tools, prober, cfg.CommandTimeout),
	}
	if tts != nil {
		deps.Synthesizer = media.NewSynthesizer(tts, prober, cfg.VoiceStyle)
	}
	return deps
}

func orDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}
