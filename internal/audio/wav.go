package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAV format tags
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatMulaw      = 7
	wavFormatExtensible = 0xFFFE
)

// wavHeaderSize is the size of the RIFF, fmt and data headers written by
// EncodeWAV
const wavHeaderSize = 44

var errNoWAVChunks = errors.New("wav: missing fmt or data chunk")

// wavInfo holds the fields of a RIFF/WAVE file needed to decode it
type wavInfo struct {
	formatTag     uint16
	channels      int
	sampleRate    int
	bitsPerSample int
	data          []byte
}

// parseWAV walks the RIFF chunks of a WAVE file. A data chunk that claims
// more bytes than remain is truncated to the file end.
func parseWAV(content []byte) (*wavInfo, error) {
	if sniff(content) != containerWAV {
		return nil, errUnknownContainer
	}

	var info wavInfo
	var haveFmt, haveData bool
	for off := 12; off+8 <= len(content); {
		id := string(content[off : off+4])
		size := int(binary.LittleEndian.Uint32(content[off+4 : off+8]))
		body := content[off+8:]
		if size < len(body) {
			body = body[:size]
		}

		switch id {
		case "fmt ":
			if len(body) < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short (%d bytes)", len(body))
			}
			info.formatTag = binary.LittleEndian.Uint16(body[0:2])
			info.channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))

			// The extensible layout carries the real tag in the first two
			// bytes of its sub-format GUID
			if info.formatTag == wavFormatExtensible {
				if len(body) < 26 {
					return nil, fmt.Errorf("wav: extensible fmt chunk too short (%d bytes)", len(body))
				}
				info.formatTag = binary.LittleEndian.Uint16(body[24:26])
			}
			haveFmt = true
		case "data":
			info.data = body
			haveData = true
		}

		// Chunks are word aligned
		off += 8 + size + size&1
	}

	if !haveFmt || !haveData {
		return nil, errNoWAVChunks
	}
	return &info, nil
}

// decodeWAV decodes integer PCM, IEEE float and G.711 μ-law WAV files with
// any number of channels. It also returns the sample width in bytes used to
// re-encode segments. A trailing partial frame is dropped.
func decodeWAV(content []byte) (*Buffer, int, error) {
	info, err := parseWAV(content)
	if err != nil {
		return nil, 0, err
	}
	if info.channels < 1 {
		return nil, 0, fmt.Errorf("wav: invalid channel count %d", info.channels)
	}

	width := (info.bitsPerSample + 7) / 8
	precision := defaultPrecision
	var sample func([]byte) float64

	switch {
	case info.formatTag == wavFormatPCM && width >= 1 && width <= 4:
		sample = pcmSample(width)
		precision = width
	case info.formatTag == wavFormatFloat && width == 4:
		sample = func(p []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
		}
	case info.formatTag == wavFormatFloat && width == 8:
		sample = func(p []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(p))
		}
	case info.formatTag == wavFormatMulaw:
		width = 1
		sample = func(p []byte) float64 {
			return float64(mulawToLinear(p[0])) / mulawFullScale
		}
	default:
		return nil, 0, fmt.Errorf("wav: unsupported format %d with %d bits per sample", info.formatTag, info.bitsPerSample)
	}

	n := len(info.data) / (width * info.channels) * info.channels
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = sample(info.data[i*width : (i+1)*width])
	}

	return &Buffer{Samples: samples, SampleRate: info.sampleRate, Channels: info.channels}, precision, nil
}

// pcmSample returns a reader for little-endian integer samples of the given
// width. 8-bit samples are unsigned, wider ones are two's complement.
func pcmSample(width int) func([]byte) float64 {
	if width == 1 {
		return func(p []byte) float64 {
			return (float64(p[0]) - 128) / 128
		}
	}

	shift := 64 - 8*width
	scale := math.Exp2(float64(8*width - 1))
	return func(p []byte) float64 {
		var v uint64
		for i := width - 1; i >= 0; i-- {
			v = v<<8 | uint64(p[i])
		}
		return float64(int64(v<<shift)>>shift) / scale
	}
}

// EncodeWAV encodes a buffer with any number of channels as an integer PCM
// WAV file. precision is the sample width in bytes (1 to 4); other values
// fall back to 16-bit. Samples are clipped to [-1, 1].
func EncodeWAV(b *Buffer, precision int) ([]byte, error) {
	if b.Channels < 1 {
		return nil, fmt.Errorf("wav encode: invalid channel count %d", b.Channels)
	}
	if b.SampleRate <= 0 {
		return nil, fmt.Errorf("wav encode: invalid sample rate %d", b.SampleRate)
	}
	if precision < 1 || precision > 4 {
		precision = defaultPrecision
	}

	frames := b.Frames()
	blockAlign := b.Channels * precision
	dataSize := frames * blockAlign

	out := make([]byte, 0, wavHeaderSize+dataSize)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(wavHeaderSize-8+dataSize))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, wavFormatPCM)
	out = binary.LittleEndian.AppendUint16(out, uint16(b.Channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(b.SampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(b.SampleRate*blockAlign))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, uint16(precision*8))

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(dataSize))
	for _, s := range b.Samples[:frames*b.Channels] {
		out = appendPCM(out, s, precision)
	}
	return out, nil
}

func appendPCM(out []byte, x float64, width int) []byte {
	x = math.Max(-1, math.Min(1, x))
	if width == 1 {
		return append(out, byte(math.Round(x*127)+128))
	}

	v := uint64(int64(math.Round(x * (math.Exp2(float64(8*width-1)) - 1))))
	for i := 0; i < width; i++ {
		out = append(out, byte(v))
		v >>= 8
	}
	return out
}
