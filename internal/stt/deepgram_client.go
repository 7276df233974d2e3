package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/resilience"
)

// DeepgramBackendName is the backend name of the hosted Deepgram model
const DeepgramBackendName = "deepgram"

// DeepgramConfig holds configuration for the Deepgram prerecorded API
type DeepgramConfig struct {
	APIKey string
	Model  string

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
}

// DeepgramClient implements Transcriber using Deepgram's prerecorded REST API
type DeepgramClient struct {
	cfg            DeepgramConfig
	client         *prerecorded.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewDeepgramClient creates a new Deepgram prerecorded client
func NewDeepgramClient(cfg DeepgramConfig) *DeepgramClient {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.CircuitBreakerResetTimeout == 0 {
		cfg.CircuitBreakerResetTimeout = 30 * time.Second
	}

	// Using empty ClientOptions to use defaults
	restClient := listenClient.NewREST(cfg.APIKey, &interfaces.ClientOptions{})

	return &DeepgramClient{
		cfg:            cfg,
		client:         prerecorded.New(restClient),
		circuitBreaker: resilience.NewCircuitBreaker(DeepgramBackendName, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout),
		logger:         observability.GetLogger().With().Str("component", DeepgramBackendName).Logger(),
	}
}

// Name returns the backend name
func (d *DeepgramClient) Name() string { return DeepgramBackendName }

// Transcribe uploads the buffer and returns the best alternative of the
// first channel
func (d *DeepgramClient) Transcribe(ctx context.Context, buf *audio.Buffer, opts Options) (*Result, error) {
	wavData, err := encodeCanonical(DeepgramBackendName, buf)
	if err != nil {
		return nil, err
	}

	tOptions := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.cfg.Model,
		Punctuate:   true,
		SmartFormat: true,
	}
	if opts.Language != "" {
		tOptions.Language = opts.Language
	} else {
		tOptions.DetectLanguage = true
	}
	if opts.Prompt != "" {
		// Deepgram has no free-form prompt; theme words are boosted as keywords
		tOptions.Keywords = strings.Fields(opts.Prompt)
	}

	var text, detected string
	err = guarded(d.circuitBreaker, func() error {
		res, callErr := d.client.FromStream(ctx, bytes.NewReader(wavData), tOptions)
		if callErr != nil {
			return fmt.Errorf("deepgram request: %w", callErr)
		}
		if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
			return nil
		}

		channel := res.Results.Channels[0]
		detected = channel.DetectedLanguage
		if len(channel.Alternatives) > 0 {
			text = channel.Alternatives[0].Transcript
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(DeepgramBackendName, err)
	}

	result := newResult(opts, text, detected)
	d.logger.Debug().
		Str("model", d.cfg.Model).
		Str("language", result.Language).
		Dur("audio_duration", buf.Duration()).
		Msg("Deepgram transcription completed")

	return result, nil
}

// IsAvailable reports whether the client is configured. A test request
// would be billed, so no call is made.
func (d *DeepgramClient) IsAvailable(ctx context.Context) bool {
	return d.cfg.APIKey != "" && d.circuitBreaker.GetState() != resilience.StateOpen
}

// Close is a no-op; the REST client holds no session
func (d *DeepgramClient) Close() error {
	return nil
}
