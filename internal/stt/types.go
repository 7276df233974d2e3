package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lexiqai/transcriber/internal/audio"
	"github.com/lexiqai/transcriber/internal/observability"
	"github.com/lexiqai/transcriber/internal/resilience"
)

// UnknownLanguage is reported when no hint was given and the backend could
// not identify the language
const UnknownLanguage = "unknown"

// ErrTranscription wraps every failure of a speech recognition backend
var ErrTranscription = errors.New("transcription failed")

// Options controls a single transcription call
type Options struct {
	// Language is an optional hint. When set it is returned verbatim as the
	// detected language.
	Language string

	// Prompt biases recognition toward the given vocabulary (the recording theme)
	Prompt string
}

// Result represents a transcription of one audio buffer
type Result struct {
	// Text is the recognized text with surrounding whitespace trimmed
	Text string

	// Language is the hint, the detected language, or UnknownLanguage
	Language string
}

// Transcriber is the interface for speech-to-text backends. Implementations
// hold a loaded model (or a client to one) and are reused across calls.
type Transcriber interface {
	// Name returns the backend name used in logs and metrics
	Name() string

	// Transcribe recognizes speech in a canonical (mono, 16kHz) buffer
	Transcribe(ctx context.Context, buf *audio.Buffer, opts Options) (*Result, error)

	// IsAvailable reports whether the backend is reachable
	IsAvailable(ctx context.Context) bool

	// Close releases the model handle
	Close() error
}

// newResult applies the language fallback chain and trims the text
func newResult(opts Options, text, detected string) *Result {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = strings.TrimSpace(detected)
	}
	if language == "" {
		language = UnknownLanguage
	}
	return &Result{
		Text:     strings.TrimSpace(text),
		Language: language,
	}
}

// encodeCanonical renders buf as 16-bit WAV for upload
func encodeCanonical(backend string, buf *audio.Buffer) ([]byte, error) {
	if !buf.IsCanonical() {
		return nil, wrapError(backend, fmt.Errorf("buffer must be mono %d Hz", audio.TargetSampleRate))
	}
	data, err := audio.EncodeWAV(buf, 2)
	if err != nil {
		return nil, wrapError(backend, err)
	}
	return data, nil
}

func wrapError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTranscription, backend, err)
}

// guarded runs fn through the breaker and publishes the breaker state
func guarded(cb *resilience.CircuitBreaker, fn func() error) error {
	err := cb.Call(fn)
	observability.UpdateCircuitBreakerState(cb.Name(), int(cb.GetState()))
	return err
}
