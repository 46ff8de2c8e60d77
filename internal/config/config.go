package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TTS provider names accepted by TTS_PROVIDER.
const (
	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderCartesia   = "cartesia"
	TTSProviderOpenAI     = "openai"
	TTSProviderGemini     = "gemini"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Media tools
	TempDir     string
	FFmpegPath  string
	FFprobePath string
	YTDLPPath   string

	// Pipeline
	DefaultSegmentSeconds float64
	CommandTimeout        time.Duration // bound on each ffmpeg/ffprobe invocation
	DownloadTimeout       time.Duration // bound on each yt-dlp invocation
	ExtractConcurrency    int           // parallel segment extractions per job (1 = sequential)
	NormalizeSource       bool          // re-encode acquired sources to H.264/AAC first
	VerboseCommands       bool          // log every subprocess command line

	// TTS
	TTSProvider string
	VoiceStyle  string

	ElevenLabsKey     string
	ElevenLabsVoiceID string

	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	OpenAIKey   string
	OpenAIVoice string

	GeminiKey   string
	GeminiVoice string

	// Worker
	MaxConcurrentJobs int
}

// Load reads the full server configuration: database, queue, storage and a
// usable TTS provider are all required.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	provider, err := cfg.resolveTTSProvider()
	if err != nil {
		return nil, err
	}
	cfg.TTSProvider = provider

	return cfg, nil
}

// LoadLocal reads the pipeline settings only, for running jobs from the
// command line. TTSProvider stays empty when no provider key is set.
func LoadLocal() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	provider, err := cfg.resolveTTSProvider()
	if err != nil && cfg.TTSProvider != "" {
		return nil, err
	}
	cfg.TTSProvider = provider

	return cfg, nil
}

func load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "reelforge-videos"),
		TempDir:               getEnv("TEMP_DIR", "/tmp/reelforge"),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		YTDLPPath:             getEnv("YTDLP_PATH", "yt-dlp"),
		DefaultSegmentSeconds: getEnvFloat("DEFAULT_SEGMENT_SECONDS", 60),
		CommandTimeout:        getEnvDuration("COMMAND_TIMEOUT", 10*time.Minute),
		DownloadTimeout:       getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Minute),
		ExtractConcurrency:    getEnvInt("EXTRACT_CONCURRENCY", 1),
		NormalizeSource:       getEnvBool("NORMALIZE_SOURCE", false),
		VerboseCommands:       getEnvBool("VERBOSE_COMMANDS", false),
		TTSProvider:           strings.ToLower(getEnv("TTS_PROVIDER", "")),
		VoiceStyle:            getEnv("VOICE_STYLE", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIVoice:           getEnv("OPENAI_TTS_VOICE", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiVoice:           getEnv("GEMINI_TTS_VOICE", ""),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
	}

	if !(cfg.DefaultSegmentSeconds > 0) {
		return nil, fmt.Errorf("DEFAULT_SEGMENT_SECONDS must be positive, got %v", cfg.DefaultSegmentSeconds)
	}

	if cfg.ExtractConcurrency < 1 {
		cfg.ExtractConcurrency = 1
	}
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}

	return cfg, nil
}

// resolveTTSProvider validates TTS_PROVIDER against the configured keys, or
// picks the first provider with a key when it is unset.
func (c *Config) resolveTTSProvider() (string, error) {
	keys := []struct{ name, key string }{
		{TTSProviderElevenLabs, c.ElevenLabsKey},
		{TTSProviderCartesia, c.CartesiaKey},
		{TTSProviderOpenAI, c.OpenAIKey},
		{TTSProviderGemini, c.GeminiKey},
	}

	if c.TTSProvider == "" {
		for _, k := range keys {
			if k.key != "" {
				return k.name, nil
			}
		}
		return "", fmt.Errorf("one of ELEVENLABS_API_KEY, CARTESIA_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY is required for TTS")
	}

	for _, k := range keys {
		if k.name != c.TTSProvider {
			continue
		}
		if k.key == "" {
			return "", fmt.Errorf("TTS_PROVIDER=%s but its API key is not set", c.TTSProvider)
		}
		return k.name, nil
	}
	return "", fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "10m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
