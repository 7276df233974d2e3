package audio

import "math"

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection, in full-scale units
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame (320 = 20ms at 16kHz)
}

// DefaultVADConfig returns a default VAD configuration for canonical buffers
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 0.001, // about -60 dBFS
		SilenceFrames:   10,    // 200ms of silence (10 frames * 20ms)
		FrameSize:       320,   // 20ms at 16kHz
	}
}

// VADDetector performs Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{
		config: config,
	}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []float64) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// HasSpeech scans a mono buffer frame by frame and reports whether any frame
// crosses the energy threshold. A zero threshold always reports speech.
func HasSpeech(b *Buffer, config *VADConfig) bool {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.EnergyThreshold <= 0 {
		return true
	}
	size := config.FrameSize
	if size <= 0 {
		size = len(b.Samples)
	}

	vad := NewVADDetector(config)
	for start := 0; start < len(b.Samples); start += size {
		end := min(start+size, len(b.Samples))
		if _, started, _ := vad.ProcessFrame(b.Samples[start:end]); started {
			return true
		}
	}
	return false
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += sample * sample
	}

	return math.Sqrt(sum / float64(len(samples)))
}
