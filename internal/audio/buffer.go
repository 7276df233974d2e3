package audio

import (
	"errors"
	"time"
)

// TargetSampleRate is the sample rate every model backend consumes
const TargetSampleRate = 16000

// ErrDecode is returned when an audio buffer cannot be decoded
var ErrDecode = errors.New("audio decode failed")

// Buffer holds decoded audio as interleaved float samples in [-1, 1]
type Buffer struct {
	// Samples are interleaved by channel: frame i occupies Samples[i*Channels : (i+1)*Channels]
	Samples []float64

	// SampleRate is the number of frames per second
	SampleRate int

	// Channels is the number of interleaved channels
	Channels int
}

// Frames returns the number of sample frames in the buffer
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// IsCanonical reports whether the buffer is mono at TargetSampleRate
func (b *Buffer) IsCanonical() bool {
	return b != nil && b.Channels == 1 && b.SampleRate == TargetSampleRate
}
