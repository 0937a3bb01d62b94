// Package audio holds the sample plumbing between a capture device and the
// scoring backends: float32 windows, PCM16 conversion, resampling, input gain,
// the rolling clip buffer, WAV encoding and window sources.
//
// All samples are mono float32 in [-1, 1].
package audio

import "time"

// Window is one fixed-length block of mono samples handed to a scorer.
type Window struct {
	// Samples holds mono float32 samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for the default classifier input).
	SampleRate int

	// CapturedAt marks when the last sample of the window was read.
	CapturedAt time.Time
}

// Duration returns the playback length of w.
func (w Window) Duration() time.Duration {
	return SamplesDuration(len(w.Samples), w.SampleRate)
}

// SamplesDuration converts a sample count at rate Hz to a duration.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// SamplesFor returns the number of samples covering seconds at rate Hz,
// never less than one.
func SamplesFor(seconds float64, rate int) int {
	n := int(seconds * float64(rate))
	if n < 1 {
		return 1
	}
	return n
}
