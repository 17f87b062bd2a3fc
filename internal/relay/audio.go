package relay

import (
	"encoding/binary"
	"fmt"
)

// Telephony audio is G.711 mu-law at 8 kHz; the agent consumes 16 kHz PCM and
// produces 24 kHz PCM. Conversion in both directions happens per frame inside
// the relay, and a bad frame is skipped rather than killing the call.

const (
	TelephonyRate = 8000
	AgentInRate   = 16000
	AgentOutRate  = 24000
)

const (
	muLawBias = 0x84
	muLawClip = 32635
)

func decodeMuLawSample(m byte) int16 {
	m = ^m
	sign := m & 0x80
	exponent := (m >> 4) & 0x07
	data := (int(m&0x0f) << 3) + muLawBias
	data <<= exponent
	data -= muLawBias
	if sign != 0 {
		return int16(-data)
	}
	return int16(data)
}

func encodeMuLawSample(s int16) byte {
	v := int(s)
	sign := byte(0)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := 7
	for mask := 0x4000; v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> uint(exponent+3)) & 0x0f
	return ^(sign | byte(exponent)<<4 | byte(mantissa))
}

// MuLawToPCM16 expands 8-bit mu-law to little-endian 16-bit PCM at the same
// sample rate.
func MuLawToPCM16(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, m := range mulaw {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(decodeMuLawSample(m)))
	}
	return out
}

// PCM16ToMuLaw compresses little-endian 16-bit PCM to 8-bit mu-law.
func PCM16ToMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm length %d is not sample-aligned", len(pcm))
	}
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = encodeMuLawSample(s)
	}
	return out, nil
}

// ResamplePCM16 converts little-endian 16-bit mono PCM between sample rates by
// linear interpolation. Good enough for telephone-band speech.
func ResamplePCM16(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm length %d is not sample-aligned", len(pcm))
	}
	if fromRate == toRate {
		return pcm, nil
	}

	in := make([]int16, len(pcm)/2)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	if len(in) == 0 {
		return nil, nil
	}

	outLen := len(in) * toRate / fromRate
	out := make([]byte, outLen*2)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * float64(fromRate) / float64(toRate)
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := in[idx]
		s1 := s0
		if idx+1 < len(in) {
			s1 = in[idx+1]
		}
		sample := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out, nil
}
