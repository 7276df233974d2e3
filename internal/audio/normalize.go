package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Normalize decodes content and converts it to mono at TargetSampleRate.
func Normalize(content []byte) (*Buffer, error) {
	buf, err := Decode(content)
	if err != nil {
		return nil, err
	}
	return Canonicalize(buf), nil
}

// Canonicalize downmixes and resamples an already decoded buffer.
// The input buffer is not modified.
func Canonicalize(b *Buffer) *Buffer {
	mono := Downmix(b)
	if mono.SampleRate == TargetSampleRate {
		return mono
	}
	return &Buffer{
		Samples:    Resample(mono.Samples, mono.SampleRate, TargetSampleRate),
		SampleRate: TargetSampleRate,
		Channels:   1,
	}
}

// Downmix averages all channels of every frame into a single channel
func Downmix(b *Buffer) *Buffer {
	if b.Channels <= 1 {
		samples := make([]float64, len(b.Samples))
		copy(samples, b.Samples)
		return &Buffer{Samples: samples, SampleRate: b.SampleRate, Channels: 1}
	}

	frames := b.Frames()
	mono := make([]float64, frames)
	scale := 1.0 / float64(b.Channels)
	for i := 0; i < frames; i++ {
		var sum float64
		for _, s := range b.Samples[i*b.Channels : (i+1)*b.Channels] {
			sum += s
		}
		mono[i] = sum * scale
	}

	return &Buffer{Samples: mono, SampleRate: b.SampleRate, Channels: 1}
}

// Resample converts a mono sample sequence from one rate to another in the
// frequency domain. The output has round(len(samples)*to/from) samples.
//
// The spectrum is truncated or zero padded to the new length; the bin at
// the shared Nyquist frequency is doubled when downsampling and halved when
// upsampling so that the real periodic signal keeps its energy.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	n := len(samples)
	m := int(math.Round(float64(n) * float64(to) / float64(from)))
	if m == 0 {
		return []float64{}
	}

	spectrum := realSpectrum(samples)

	resized := make([]complex128, m/2+1)
	shared := min(n, m)
	copy(resized, spectrum[:shared/2+1])
	if shared%2 == 0 {
		switch {
		case m < n:
			resized[shared/2] *= 2
		case m > n:
			resized[shared/2] *= 0.5
		}
	}

	out := realSequence(resized, m)

	// The inverse is unnormalized; dividing by the source length also
	// applies the m/n amplitude correction.
	scale := 1.0 / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// maxDirectRadix is the largest prime factor a length may have to use the
// mixed-radix FFT directly. Other lengths go through a chirp-z transform,
// since the mixed-radix code is quadratic in large prime factors.
const maxDirectRadix = 7

func smoothLength(n int) bool {
	for p := 2; p <= maxDirectRadix; p++ {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}

// realSpectrum returns the n/2+1 non-negative frequency coefficients of a
// real sequence
func realSpectrum(samples []float64) []complex128 {
	n := len(samples)
	if smoothLength(n) {
		return fourier.NewFFT(n).Coefficients(nil, samples)
	}

	seq := make([]complex128, n)
	for i, v := range samples {
		seq[i] = complex(v, 0)
	}
	return chirpZ(seq, false)[:n/2+1]
}

// realSequence returns the unnormalized length-m real sequence of the
// non-negative frequency coefficients in half
func realSequence(half []complex128, m int) []float64 {
	if smoothLength(m) {
		return fourier.NewFFT(m).Sequence(nil, half)
	}

	// Rebuild the Hermitian spectrum; the imaginary parts of the DC and
	// Nyquist bins only reach the imaginary output and are dropped with it
	full := make([]complex128, m)
	copy(full, half)
	for k := m/2 + 1; k < m; k++ {
		full[k] = cmplx.Conj(half[m-k])
	}

	seq := chirpZ(full, true)
	out := make([]float64, m)
	for i, v := range seq {
		out[i] = real(v)
	}
	return out
}

// chirpZ computes the unnormalized DFT of x for any length with Bluestein's
// algorithm: a convolution with a chirp evaluated by power-of-two FFTs.
// inverse selects the positive exponent.
func chirpZ(x []complex128, inverse bool) []complex128 {
	n := len(x)
	size := 1
	for size < 2*n-1 {
		size <<= 1
	}

	sign := -1.0
	if inverse {
		sign = 1
	}

	// j² is reduced mod 2n to keep the phase exact for long inputs
	chirp := make([]complex128, n)
	for j := range chirp {
		jj := int64(j) * int64(j) % int64(2*n)
		chirp[j] = cmplx.Rect(1, sign*math.Pi*float64(jj)/float64(n))
	}

	a := make([]complex128, size)
	for j := 0; j < n; j++ {
		a[j] = x[j] * chirp[j]
	}
	b := make([]complex128, size)
	b[0] = cmplx.Conj(chirp[0])
	for j := 1; j < n; j++ {
		b[j] = cmplx.Conj(chirp[j])
		b[size-j] = b[j]
	}

	fft := fourier.NewCmplxFFT(size)
	fft.Coefficients(a, a)
	fft.Coefficients(b, b)
	for i := range a {
		a[i] *= b[i]
	}
	fft.Sequence(a, a)

	out := make([]complex128, n)
	scale := complex(1/float64(size), 0)
	for k := range out {
		out[k] = a[k] * chirp[k] * scale
	}
	return out
}
