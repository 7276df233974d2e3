package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/resilience"
)

const (
	// FasterWhisperBackendName is the backend name of the optimized Whisper model
	FasterWhisperBackendName = "faster-whisper"

	defaultFasterWhisperURL     = "http://localhost:8387"
	defaultFasterWhisperModel   = "base"
	defaultFasterWhisperTimeout = 300 * time.Second
)

// FasterWhisperConfig holds configuration for the faster-whisper sidecar
type FasterWhisperConfig struct {
	URL     string
	Model   string
	Timeout time.Duration

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
}

// FasterWhisperClient implements Transcriber using a faster-whisper HTTP
// sidecar that keeps the model loaded between calls
type FasterWhisperClient struct {
	cfg            FasterWhisperConfig
	client         *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewFasterWhisperClient creates a new faster-whisper sidecar client
func NewFasterWhisperClient(cfg FasterWhisperConfig) *FasterWhisperClient {
	if cfg.URL == "" {
		cfg.URL = defaultFasterWhisperURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultFasterWhisperModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultFasterWhisperTimeout
	}
	if cfg.CircuitBreakerResetTimeout == 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}

	return &FasterWhisperClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: resilience.NewCircuitBreaker(FasterWhisperBackendName, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout),
		logger:         observability.GetLogger().With().Str("component", FasterWhisperBackendName).Logger(),
	}
}

// Name returns the backend name
func (c *FasterWhisperClient) Name() string { return FasterWhisperBackendName }

// IsAvailable checks if the faster-whisper sidecar is reachable
func (c *FasterWhisperClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe sends the buffer to the sidecar. The text of every recognized
// segment is joined with a single space.
func (c *FasterWhisperClient) Transcribe(ctx context.Context, buf *audio.Buffer, opts Options) (*Result, error) {
	wavData, err := encodeCanonical(FasterWhisperBackendName, buf)
	if err != nil {
		return nil, err
	}

	var resp *fasterWhisperResponse
	err = guarded(c.circuitBreaker, func() error {
		var callErr error
		resp, callErr = c.transcribe(ctx, wavData, opts)
		return callErr
	})
	if err != nil {
		return nil, wrapError(FasterWhisperBackendName, err)
	}

	result := newResult(opts, resp.joinedText(), resp.Language)
	c.logger.Debug().
		Str("language", result.Language).
		Int("segments", len(resp.Segments)).
		Dur("audio_duration", buf.Duration()).
		Msg("Faster-whisper transcription completed")

	return result, nil
}

func (c *FasterWhisperClient) transcribe(ctx context.Context, wavData []byte, opts Options) (*fasterWhisperResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	_ = writer.WriteField("model", c.cfg.Model)
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		_ = writer.WriteField("initial_prompt", opts.Prompt)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("faster-whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resilience.StatusError("faster-whisper", resp.StatusCode, respBody)
	}

	var result fasterWhisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode faster-whisper response: %w", err)
	}
	return &result, nil
}

// Close releases idle sidecar connections
func (c *FasterWhisperClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// --- internal faster-whisper API response types ---

type fasterWhisperResponse struct {
	Text     string                 `json:"text"`
	Segments []fasterWhisperSegment `json:"segments"`
	Language string                 `json:"language"`
}

type fasterWhisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r *fasterWhisperResponse) joinedText() string {
	if len(r.Segments) == 0 {
		return r.Text
	}
	parts := make([]string, len(r.Segments))
	for i, seg := range r.Segments {
		parts[i] = seg.Text
	}
	return strings.Join(parts, " ")
}
