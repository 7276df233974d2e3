package diarization

import (
	"context"
	"fmt"

	"github.com/lexiqai/transcriber/internal/audio"
)

// Diarizer runs a backend over a canonical buffer and coalesces its output
// into time-ordered speaker turns.
type Diarizer struct {
	backend Backend
}

// NewDiarizer takes ownership of backend; Close releases it.
func NewDiarizer(backend Backend) *Diarizer {
	return &Diarizer{backend: backend}
}

// Name returns the backend name
func (d *Diarizer) Name() string {
	return d.backend.Name()
}

// Diarize returns merged speaker intervals sorted by start.
func (d *Diarizer) Diarize(ctx context.Context, buf *audio.Buffer, maxSpeakers int) ([]Interval, error) {
	if !buf.IsCanonical() {
		return nil, fmt.Errorf("%w: buffer must be mono %d Hz, got %d channels at %d Hz",
			ErrDiarization, audio.TargetSampleRate, buf.Channels, buf.SampleRate)
	}

	raw, err := d.backend.Diarize(ctx, Request{Audio: buf, MaxSpeakers: maxSpeakers})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiarization, d.backend.Name(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrDiarization, ErrNoSpeech)
	}

	return Merge(SortIntervals(raw)), nil
}

// IsAvailable reports whether the backend is reachable
func (d *Diarizer) IsAvailable(ctx context.Context) bool {
	return d.backend.IsAvailable(ctx)
}

// Close releases the backend model handle
func (d *Diarizer) Close() error {
	return d.backend.Close()
}
