package audio

import (
	"testing"
)

func constantFrame(size int, value float64) []float64 {
	samples := make([]float64, size)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	vad := NewVADDetector(&VADConfig{EnergyThreshold: 0.01, SilenceFrames: 10, FrameSize: 320})

	samples := constantFrame(320, 0.2)

	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(samples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !speechStarted {
			t.Error("Expected speech to start on first frame")
		}
	}
}

func TestVADDetector_ProcessFrame_Silence(t *testing.T) {
	vad := NewVADDetector(&VADConfig{EnergyThreshold: 0.01, SilenceFrames: 10, FrameSize: 320})

	samples := constantFrame(320, 0.0001)

	for i := 0; i < 15; i++ {
		isSpeaking, _, _ := vad.ProcessFrame(samples)
		if isSpeaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(&VADConfig{EnergyThreshold: 0.01, SilenceFrames: 10, FrameSize: 320})

	high := constantFrame(320, 0.2)
	low := constantFrame(320, 0.0001)

	for i := 0; i < 5; i++ {
		vad.ProcessFrame(high)
	}

	speechEnded := false
	for i := 0; i < 15; i++ {
		if _, _, ended := vad.ProcessFrame(low); ended {
			speechEnded = true
			break
		}
	}

	if !speechEnded {
		t.Error("Expected speech to end after silence frames")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 0.001 {
		t.Errorf("Expected default EnergyThreshold 0.001, got %f", config.EnergyThreshold)
	}
	if config.FrameSize != 320 {
		t.Errorf("Expected default FrameSize 320, got %d", config.FrameSize)
	}
}

func TestHasSpeech(t *testing.T) {
	silent := &Buffer{Samples: make([]float64, 16000), SampleRate: TargetSampleRate, Channels: 1}
	if HasSpeech(silent, nil) {
		t.Error("Expected all-zero buffer to contain no speech")
	}

	// A single loud frame in the middle of silence counts as speech
	burst := &Buffer{Samples: make([]float64, 16000), SampleRate: TargetSampleRate, Channels: 1}
	for i := 8000; i < 8320; i++ {
		burst.Samples[i] = 0.3
	}
	if !HasSpeech(burst, nil) {
		t.Error("Expected burst to be detected as speech")
	}

	if !HasSpeech(silent, &VADConfig{EnergyThreshold: 0}) {
		t.Error("Expected zero threshold to disable the silence check")
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []float64{0.1, -0.1, 0.2, -0.2}
	rms := CalculateRMS(samples)

	// sqrt((0.01 + 0.01 + 0.04 + 0.04) / 4)
	expected := 0.158113
	if rms < expected-1e-5 || rms > expected+1e-5 {
		t.Errorf("Expected RMS around %.6f, got %.6f", expected, rms)
	}

	if CalculateRMS(nil) != 0 {
		t.Error("Expected RMS of empty slice to be 0")
	}
}
