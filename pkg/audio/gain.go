package audio

import "math"

// MaxGainDB bounds the configurable microphone gain in both directions.
const MaxGainDB = 30.0

// ClampGainDB limits db to [-MaxGainDB, MaxGainDB].
func ClampGainDB(db float64) float64 {
	return math.Max(-MaxGainDB, math.Min(MaxGainDB, db))
}

// GainFactor returns the linear amplitude factor for db after clamping.
func GainFactor(db float64) float64 {
	return math.Pow(10, ClampGainDB(db)/20)
}

// ApplyGain scales samples in place by the clamped gain db and clips the
// result to [-1, 1]. A zero gain is a no-op.
func ApplyGain(samples []float32, db float64) {
	if db == 0 {
		return
	}
	f := float32(GainFactor(db))
	for i, s := range samples {
		v := s * f
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = v
	}
}

// RMS returns the root-mean-square level of samples, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
