package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

// Speech is the raw output of a text-to-speech engine.
type Speech struct {
	AudioData  []byte
	DurationMs int    // engine estimate; the probed duration wins
	Format     string // file extension: "mp3", "wav", ...
}

// TTSEngine converts text to audio. voiceStyle is a free-form delivery hint the
// engine may ignore.
type TTSEngine interface {
	GenerateSpeech(ctx context.Context, text, voiceStyle string) (*Speech, error)
}

// Synthesizer turns a narration script into a probed audio file.
type Synthesizer struct {
	engine     TTSEngine
	prober     *Prober
	voiceStyle string
}

func NewSynthesizer(engine TTSEngine, prober *Prober, voiceStyle string) *Synthesizer {
	return &Synthesizer{engine: engine, prober: prober, voiceStyle: voiceStyle}
}

// Synthesize renders script to <job>_narration.<ext> inside ws. Empty or
// whitespace-only scripts are rejected before the engine is called.
func (s *Synthesizer) Synthesize(ctx context.Context, ws *Workspace, script string) (*AudioAsset, error) {
	if strings.TrimSpace(script) == "" {
		return nil, newStageError(StageSynthesize, ReasonEmptyInput, errors.New("script is empty"))
	}

	log.Printf("[TTS] job %s: synthesizing narration (%d chars)", ws.JobID(), len(script))

	speech, err := s.engine.GenerateSpeech(ctx, script, s.voiceStyle)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, newStageError(StageSynthesize, ReasonCancelled, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newStageError(StageSynthesize, ReasonTimeout, err)
		}
		return nil, newStageError(StageSynthesize, ReasonEngineFailure, err)
	}
	if speech == nil || len(speech.AudioData) == 0 {
		return nil, newStageError(StageSynthesize, ReasonEngineFailure, errors.New("engine wrote no audio"))
	}

	ext := strings.TrimPrefix(speech.Format, ".")
	if ext == "" {
		ext = "mp3"
	}
	path := ws.Path("narration." + ext)
	if err := os.WriteFile(path, speech.AudioData, 0644); err != nil {
		ws.Remove(path)
		return nil, newStageError(StageSynthesize, ReasonEngineFailure, fmt.Errorf("failed to write audio file: %w", err))
	}

	duration, err := s.prober.Probe(ctx, path)
	if err != nil {
		ws.Remove(path)
		reason := ReasonEngineFailure
		if se, ok := AsStageError(err); ok && (se.Reason == ReasonTimeout || se.Reason == ReasonCancelled) {
			reason = se.Reason
		}
		return nil, newStageError(StageSynthesize, reason, fmt.Errorf("narration audio is not playable: %w", err))
	}

	log.Printf("[TTS] job %s: narration ready (%d bytes, %.2fs)", ws.JobID(), len(speech.AudioData), duration)

	return &AudioAsset{MediaAsset: MediaAsset{
		Path:            path,
		Kind:            KindAudio,
		DurationSeconds: duration,
		Owned:           true,
	}}, nil
}
