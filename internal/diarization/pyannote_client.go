package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/resilience"
)

const (
	// PyannoteBackendName is the backend name reported in logs and metrics
	PyannoteBackendName = "pyannote"

	defaultPyannoteURL     = "http://localhost:8388"
	defaultPyannoteModel   = "pyannote/speaker-diarization-3.1"
	defaultPyannoteTimeout = 300 * time.Second
)

// PyannoteConfig holds configuration for the pyannote sidecar client
type PyannoteConfig struct {
	BaseURL string
	Model   string
	Token   string
	Timeout time.Duration

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
}

// PyannoteClient runs speaker diarization through the pyannote HTTP sidecar.
// The sidecar keeps the pretrained pipeline loaded between calls.
type PyannoteClient struct {
	cfg            PyannoteConfig
	client         *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewPyannoteClient creates a new pyannote sidecar client
func NewPyannoteClient(cfg PyannoteConfig) *PyannoteClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPyannoteURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultPyannoteModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultPyannoteTimeout
	}
	if cfg.CircuitBreakerResetTimeout == 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}

	return &PyannoteClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: resilience.NewCircuitBreaker(PyannoteBackendName, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout),
		logger:         observability.GetLogger().With().Str("component", "pyannote").Logger(),
	}
}

// Name returns the backend name
func (c *PyannoteClient) Name() string { return PyannoteBackendName }

// IsAvailable checks if the pyannote sidecar is reachable
func (c *PyannoteClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
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

// Diarize uploads the buffer as 16-bit WAV and returns the raw intervals
func (c *PyannoteClient) Diarize(ctx context.Context, req Request) ([]Interval, error) {
	wavData, err := audio.EncodeWAV(req.Audio, 2)
	if err != nil {
		return nil, fmt.Errorf("encode audio: %w", err)
	}

	var intervals []Interval
	err = c.circuitBreaker.Call(func() error {
		var callErr error
		intervals, callErr = c.diarize(ctx, wavData, req.MaxSpeakers)
		return callErr
	})
	observability.UpdateCircuitBreakerState(PyannoteBackendName, int(c.circuitBreaker.GetState()))
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("intervals", len(intervals)).
		Dur("audio_duration", req.Audio.Duration()).
		Msg("Diarization completed")

	return intervals, nil
}

func (c *PyannoteClient) diarize(ctx context.Context, wavData []byte, maxSpeakers int) ([]Interval, error) {
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
	if maxSpeakers > 0 {
		_ = writer.WriteField("max_speakers", strconv.Itoa(maxSpeakers))
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/diarize", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, resilience.StatusError("pyannote", resp.StatusCode, respBody)
	}

	var result pyannoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("pyannote error: %s", result.Error)
	}

	intervals := make([]Interval, len(result.Segments))
	for i, seg := range result.Segments {
		intervals[i] = Interval{
			Start:   seg.StartTime,
			End:     seg.EndTime,
			Speaker: seg.SpeakerID,
		}
	}
	return intervals, nil
}

// Close releases idle sidecar connections
func (c *PyannoteClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// --- internal pyannote API types ---

type pyannoteResponse struct {
	Segments    []pyannoteSegment `json:"segments"`
	NumSpeakers int               `json:"num_speakers"`
	Error       string            `json:"error,omitempty"`
}

type pyannoteSegment struct {
	SpeakerID string  `json:"speaker_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}
