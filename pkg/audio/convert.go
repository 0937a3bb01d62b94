package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
)

// PCM16ToFloat32 decodes little-endian int16 mono PCM into float32 samples
// scaled to [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToPCM16 encodes float32 samples as little-endian int16 PCM. Samples
// outside [-1, 1] are clipped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// DownmixInterleaved averages interleaved multi-channel samples into mono.
// A channel count of one or less returns the input unchanged.
func DownmixInterleaved(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. Equal or invalid rates return the input unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Converter normalises decoded input to the classifier format. It logs once on
// the first rate mismatch. Create one per stream.
type Converter struct {
	// TargetRate is the classifier sample rate in Hz.
	TargetRate int

	warned bool
}

// Convert downmixes and resamples samples to c.TargetRate mono.
func (c *Converter) Convert(samples []float32, rate, channels int) []float32 {
	mono := DownmixInterleaved(samples, channels)
	if rate == c.TargetRate {
		return mono
	}
	if !c.warned {
		c.warned = true
		slog.Warn("audio: resampling input", "from_hz", rate, "to_hz", c.TargetRate, "channels", channels)
	}
	return Resample(mono, rate, c.TargetRate)
}
