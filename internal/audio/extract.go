package audio

// defaultPrecision is the WAV sample width (in bytes) used when the source
// width is unknown or not encodable.
const defaultPrecision = 2

// Extract re-decodes the original content and returns frames
// [int(start*sr), int(end*sr)) as a standalone PCM WAV at the native sample
// rate, channel count and bit depth. Indices are clamped to the buffer.
//
// Nothing is cached between calls: every extraction decodes the full input.
func Extract(content []byte, start, end float64) ([]byte, error) {
	buf, precision, err := decode(content)
	if err != nil {
		return nil, err
	}

	frames := buf.Frames()
	first := clampFrame(int(start*float64(buf.SampleRate)), frames)
	last := clampFrame(int(end*float64(buf.SampleRate)), frames)
	if last < first {
		last = first
	}

	segment := &Buffer{
		Samples:    buf.Samples[first*buf.Channels : last*buf.Channels],
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels,
	}
	return EncodeWAV(segment, precision)
}

func clampFrame(i, frames int) int {
	if i < 0 {
		return 0
	}
	if i > frames {
		return frames
	}
	return i
}
