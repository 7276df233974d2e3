package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transcriber backend names
const (
	BackendWhisper       = "whisper"
	BackendFasterWhisper = "faster-whisper"
	BackendDeepgram      = "deepgram"
)

// Parser backend names
const (
	ParserRules   = "rules"
	ParserNatasha = "natasha"
)

// Config holds all configuration for the transcription service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCPort       string `envconfig:"GRPC_PORT" default:"9090"`           // gRPC health service port
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"209715200"` // 200 MiB
	RequestTimeout int    `envconfig:"REQUEST_TIMEOUT" default:"1800"`       // seconds per transcription request

	// Speech transcriber selection: whisper, faster-whisper, deepgram
	TranscriberBackend string `envconfig:"TRANSCRIBER_BACKEND" default:"faster-whisper"`

	// Standard Whisper (OpenAI-compatible API)
	WhisperAPIKey  string `envconfig:"WHISPER_API_KEY" default:""`
	WhisperBaseURL string `envconfig:"WHISPER_BASE_URL" default:""` // empty uses the OpenAI endpoint
	WhisperModel   string `envconfig:"WHISPER_MODEL" default:"whisper-1"`

	// Faster-whisper sidecar
	FasterWhisperURL     string `envconfig:"FASTER_WHISPER_URL" default:"http://localhost:8387"`
	FasterWhisperModel   string `envconfig:"FASTER_WHISPER_MODEL" default:"base"`
	FasterWhisperTimeout int    `envconfig:"FASTER_WHISPER_TIMEOUT" default:"300"` // seconds

	// Deepgram STT API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Pyannote diarization sidecar
	PyannoteURL     string `envconfig:"PYANNOTE_URL" default:"http://localhost:8388"`
	PyannoteModel   string `envconfig:"PYANNOTE_MODEL" default:"pyannote/speaker-diarization-3.1"`
	PyannoteToken   string `envconfig:"PYANNOTE_TOKEN" default:""` // Hugging Face token forwarded to the sidecar
	PyannoteTimeout int    `envconfig:"PYANNOTE_TIMEOUT" default:"300"`  // seconds

	// Text normalizer configuration
	ParserBackend      string `envconfig:"PARSER_BACKEND" default:"natasha"` // natasha, rules
	NatashaURL         string `envconfig:"NATASHA_URL" default:"http://localhost:8389"`
	NatashaTimeout     int    `envconfig:"NATASHA_TIMEOUT" default:"30"` // seconds
	StopwordsMaxPasses int    `envconfig:"STOPWORDS_MAX_PASSES" default:"10"`

	// Pipeline configuration
	SilenceRMSThreshold float64 `envconfig:"SILENCE_RMS_THRESHOLD" default:"0.001"` // 0 disables the silent-input check
	PipelineConcurrency int     `envconfig:"PIPELINE_CONCURRENCY" default:"1"`      // concurrent runs sharing the model handles

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"1"`             // 1 disables retries
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"500"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.TranscriberBackend = strings.ToLower(strings.TrimSpace(cfg.TranscriberBackend))
	cfg.ParserBackend = strings.ToLower(strings.TrimSpace(cfg.ParserBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks backend selection and the credentials it needs
func (c *Config) Validate() error {
	switch c.TranscriberBackend {
	case BackendWhisper:
		if c.WhisperAPIKey == "" {
			return fmt.Errorf("WHISPER_API_KEY is required for the %s backend", BackendWhisper)
		}
	case BackendFasterWhisper:
		if c.FasterWhisperURL == "" {
			return fmt.Errorf("FASTER_WHISPER_URL is required for the %s backend", BackendFasterWhisper)
		}
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for the %s backend", BackendDeepgram)
		}
	default:
		return fmt.Errorf("unknown TRANSCRIBER_BACKEND %q", c.TranscriberBackend)
	}

	switch c.ParserBackend {
	case ParserRules:
	case ParserNatasha:
		if c.NatashaURL == "" {
			return fmt.Errorf("NATASHA_URL is required for the %s parser", ParserNatasha)
		}
	default:
		return fmt.Errorf("unknown PARSER_BACKEND %q", c.ParserBackend)
	}

	if c.PyannoteURL == "" {
		return fmt.Errorf("PYANNOTE_URL is required")
	}
	if c.PipelineConcurrency < 1 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be at least 1, got %d", c.PipelineConcurrency)
	}
	if c.StopwordsMaxPasses < 1 {
		return fmt.Errorf("STOPWORDS_MAX_PASSES must be at least 1, got %d", c.StopwordsMaxPasses)
	}
	if c.SilenceRMSThreshold < 0 {
		return fmt.Errorf("SILENCE_RMS_THRESHOLD must not be negative")
	}

	return nil
}

// Seconds converts a seconds setting to a duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a milliseconds setting to a duration
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
