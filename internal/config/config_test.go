package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/reelforge?sslmode=disable")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	for _, k := range []string{"ELEVENLABS_API_KEY", "CARTESIA_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "TTS_PROVIDER"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DEFAULT_SEGMENT_SECONDS", "")
	t.Setenv("COMMAND_TIMEOUT", "")
	t.Setenv("EXTRACT_CONCURRENCY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultSegmentSeconds != 60 {
		t.Errorf("DefaultSegmentSeconds = %v", cfg.DefaultSegmentSeconds)
	}
	if cfg.CommandTimeout != 10*time.Minute {
		t.Errorf("CommandTimeout = %v", cfg.CommandTimeout)
	}
	if cfg.ExtractConcurrency != 1 {
		t.Errorf("ExtractConcurrency = %d", cfg.ExtractConcurrency)
	}
	if cfg.TTSProvider != TTSProviderOpenAI {
		t.Errorf("expected provider picked from key, got %q", cfg.TTSProvider)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no tts key", map[string]string{}, "required for TTS"},
		{"provider without key", map[string]string{"TTS_PROVIDER": "gemini", "OPENAI_API_KEY": "k"}, "its API key is not set"},
		{"unknown provider", map[string]string{"TTS_PROVIDER": "polly", "OPENAI_API_KEY": "k"}, "unknown TTS_PROVIDER"},
		{"bad segment length", map[string]string{"OPENAI_API_KEY": "k", "DEFAULT_SEGMENT_SECONDS": "-5"}, "DEFAULT_SEGMENT_SECONDS"},
		{"no database", map[string]string{"OPENAI_API_KEY": "k", "DATABASE_URL": ""}, "DATABASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("DEFAULT_SEGMENT_SECONDS", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestExplicitProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "k1")
	t.Setenv("CARTESIA_API_KEY", "k2")
	t.Setenv("TTS_PROVIDER", "Cartesia")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TTSProvider != TTSProviderCartesia {
		t.Errorf("TTSProvider = %q", cfg.TTSProvider)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"2m30s", 150 * time.Second},
		{"45", 45 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("TEST_TIMEOUT", tt.value)
		if got := getEnvDuration("TEST_TIMEOUT", time.Minute); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoadLocal(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_URL", "")

	cfg, err := LoadLocal()
	if err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}
	if cfg.TTSProvider != "" {
		t.Errorf("expected no provider without keys, got %q", cfg.TTSProvider)
	}

	t.Setenv("GEMINI_API_KEY", "g")
	if cfg, err = LoadLocal(); err != nil || cfg.TTSProvider != TTSProviderGemini {
		t.Errorf("expected gemini, got %v %v", cfg, err)
	}

	t.Setenv("TTS_PROVIDER", "elevenlabs")
	if _, err := LoadLocal(); err == nil {
		t.Error("explicit provider without key must fail")
	}
}
