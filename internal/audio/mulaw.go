package audio

// mulawFullScale converts a 14-bit G.711 magnitude to [-1, 1]
const mulawFullScale = 8192.0

// mulawToLinear converts an 8-bit μ-law sample to a 14-bit linear value.
// μ-law is the usual encoding of telephony recordings.
func mulawToLinear(mulawByte byte) int16 {
	// μ-law stores the bitwise complement
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	// magnitude = ((mantissa << 1) + 33) << segment, minus the bias
	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := step - 33

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}
