package diarization

import (
	"context"
	"errors"

	"github.com/lexiqai/transcriber/internal/audio"
)

var (
	// ErrDiarization wraps every failure of the diarization backend
	ErrDiarization = errors.New("diarization failed")

	// ErrNoSpeech is returned (wrapped in ErrDiarization) when no speaker
	// interval was detected
	ErrNoSpeech = errors.New("no speech detected")
)

// Interval is a speaker-labeled time range in seconds
type Interval struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Request holds parameters for a backend diarization call
type Request struct {
	// Audio is a canonical (mono, 16kHz) buffer
	Audio *audio.Buffer

	// MaxSpeakers bounds the number of detected speakers (0 = auto-detect)
	MaxSpeakers int
}

// Backend runs a pretrained diarization model. Raw intervals may come back
// in any order.
type Backend interface {
	// Name returns the backend name used in logs and metrics
	Name() string

	// Diarize returns the raw speaker intervals for the request audio
	Diarize(ctx context.Context, req Request) ([]Interval, error)

	// IsAvailable reports whether the model is loaded and reachable
	IsAvailable(ctx context.Context) bool

	// Close releases the model handle
	Close() error
}
