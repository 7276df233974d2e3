package stt

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/resilience"
)

// WhisperBackendName is the backend name of the standard Whisper model
const WhisperBackendName = "whisper"

// WhisperConfig holds configuration for the standard Whisper backend
type WhisperConfig struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint; empty uses api.openai.com
	Model   string
	Timeout time.Duration

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
}

// WhisperClient implements Transcriber with the standard Whisper model served
// behind an OpenAI-compatible audio API
type WhisperClient struct {
	cfg            WhisperConfig
	client         *openai.Client
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewWhisperClient creates a new standard Whisper client
func NewWhisperClient(cfg WhisperConfig) *WhisperClient {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.CircuitBreakerResetTimeout == 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = httpClient

	return &WhisperClient{
		cfg:            cfg,
		client:         openai.NewClientWithConfig(clientConfig),
		httpClient:     httpClient,
		circuitBreaker: resilience.NewCircuitBreaker(WhisperBackendName, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout),
		logger:         observability.GetLogger().With().Str("component", WhisperBackendName).Logger(),
	}
}

// Name returns the backend name
func (c *WhisperClient) Name() string { return WhisperBackendName }

// Transcribe uploads the buffer and returns the recognized text
func (c *WhisperClient) Transcribe(ctx context.Context, buf *audio.Buffer, opts Options) (*Result, error) {
	wavData, err := encodeCanonical(WhisperBackendName, buf)
	if err != nil {
		return nil, err
	}

	var resp openai.AudioResponse
	err = guarded(c.circuitBreaker, func() error {
		var callErr error
		resp, callErr = c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.cfg.Model,
			FilePath: "segment.wav",
			Reader:   bytes.NewReader(wavData),
			Prompt:   opts.Prompt,
			Language: opts.Language,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		return markRetryable(callErr)
	})
	if err != nil {
		return nil, wrapError(WhisperBackendName, err)
	}

	result := newResult(opts, resp.Text, resp.Language)
	c.logger.Debug().
		Str("language", result.Language).
		Dur("audio_duration", buf.Duration()).
		Int("chars", len(result.Text)).
		Msg("Whisper transcription completed")

	return result, nil
}

// markRetryable flags API errors whose status means the service is
// overloaded
func markRetryable(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && resilience.IsRetryableStatus(apiErr.HTTPStatusCode) {
		return resilience.NewRetryableError(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && resilience.IsRetryableStatus(reqErr.HTTPStatusCode) {
		return resilience.NewRetryableError(err)
	}
	return err
}

// IsAvailable checks that the API answers a model listing
func (c *WhisperClient) IsAvailable(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// Close releases idle API connections
func (c *WhisperClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
