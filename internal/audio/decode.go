package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gopxl/beep/mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// streamChunk is the number of frames pulled from a decoder per Stream call
const streamChunk = 4096

type container int

const (
	containerUnknown container = iota
	containerWAV
	containerFLAC
	containerOgg
	containerMP3
)

var errUnknownContainer = errors.New("unrecognized audio container")

// Decode decodes a WAV (integer PCM, float or G.711 μ-law), FLAC, MP3 or
// Ogg Vorbis byte buffer into samples at the native sample rate and channel
// count. Every channel is kept.
func Decode(content []byte) (*Buffer, error) {
	buf, _, err := decode(content)
	return buf, err
}

// decode also returns the source sample width in bytes so callers can
// re-encode at the original bit depth.
func decode(content []byte) (*Buffer, int, error) {
	if len(content) == 0 {
		return nil, 0, fmt.Errorf("%w: empty input", ErrDecode)
	}

	var decoder func([]byte) (*Buffer, int, error)
	switch sniff(content) {
	case containerWAV:
		decoder = decodeWAV
	case containerFLAC:
		decoder = decodeFLAC
	case containerOgg:
		decoder = decodeVorbis
	case containerMP3:
		decoder = decodeMP3
	default:
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, errUnknownContainer)
	}

	buf, precision, err := decoder(content)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, buf.SampleRate)
	}
	if buf.Channels < 1 {
		return nil, 0, fmt.Errorf("%w: invalid channel count %d", ErrDecode, buf.Channels)
	}
	return buf, precision, nil
}

// decodeFLAC reads every channel of a FLAC stream
func decodeFLAC(content []byte) (*Buffer, int, error) {
	stream, err := flac.New(bytes.NewReader(content))
	if err != nil {
		return nil, 0, fmt.Errorf("flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bps := int(stream.Info.BitsPerSample)
	if channels < 1 || bps < 1 {
		return nil, 0, fmt.Errorf("flac: invalid stream info (%d channels, %d bits)", channels, bps)
	}
	scale := math.Exp2(float64(bps - 1))

	var samples []float64
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("flac: %w", err)
		}
		if len(frame.Subframes) != channels {
			return nil, 0, fmt.Errorf("flac: frame has %d channels, stream has %d", len(frame.Subframes), channels)
		}

		n := len(frame.Subframes[0].Samples)
		for _, sub := range frame.Subframes[1:] {
			n = min(n, len(sub.Samples))
		}
		for i := 0; i < n; i++ {
			for _, sub := range frame.Subframes {
				samples = append(samples, float64(sub.Samples[i])/scale)
			}
		}
	}

	buf := &Buffer{Samples: samples, SampleRate: int(stream.Info.SampleRate), Channels: channels}
	return buf, (bps + 7) / 8, nil
}

// decodeVorbis reads every channel of an Ogg Vorbis stream
func decodeVorbis(content []byte) (*Buffer, int, error) {
	data, format, err := oggvorbis.ReadAll(bytes.NewReader(content))
	if err != nil {
		return nil, 0, fmt.Errorf("ogg/vorbis: %w", err)
	}
	if format.Channels < 1 {
		return nil, 0, fmt.Errorf("ogg/vorbis: invalid channel count %d", format.Channels)
	}

	samples := make([]float64, len(data)/format.Channels*format.Channels)
	for i := range samples {
		samples[i] = float64(data[i])
	}
	return &Buffer{Samples: samples, SampleRate: format.SampleRate, Channels: format.Channels}, defaultPrecision, nil
}

// decodeMP3 drains the beep MP3 decoder, which always yields stereo frames
func decodeMP3(content []byte) (*Buffer, int, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(content)))
	if err != nil {
		return nil, 0, err
	}
	defer streamer.Close()

	channels := min(format.NumChannels, 2)
	if channels < 1 {
		return nil, 0, fmt.Errorf("mp3: invalid channel count %d", format.NumChannels)
	}

	var samples []float64
	if n := streamer.Len(); n > 0 {
		samples = make([]float64, 0, n*channels)
	}

	frames := make([][2]float64, streamChunk)
	for {
		n, ok := streamer.Stream(frames)
		for _, frame := range frames[:n] {
			samples = append(samples, frame[:channels]...)
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, 0, err
	}

	buf := &Buffer{Samples: samples, SampleRate: int(format.SampleRate), Channels: channels}
	return buf, format.Precision, nil
}

// sniff identifies the container from its magic bytes
func sniff(content []byte) container {
	switch {
	case len(content) >= 12 && string(content[0:4]) == "RIFF" && string(content[8:12]) == "WAVE":
		return containerWAV
	case bytes.HasPrefix(content, []byte("fLaC")):
		return containerFLAC
	case bytes.HasPrefix(content, []byte("OggS")):
		return containerOgg
	case bytes.HasPrefix(content, []byte("ID3")):
		return containerMP3
	case len(content) >= 2 && content[0] == 0xFF && content[1]&0xE0 == 0xE0:
		return containerMP3
	}
	return containerUnknown
}
