package audio

import "sync"

// RollingBuffer keeps the most recent capacity samples. Older samples are
// discarded as new windows arrive. It is safe for concurrent use.
type RollingBuffer struct {
	mu       sync.Mutex
	buf      []float32
	capacity int
	rate     int
}

// NewRollingBuffer returns a buffer holding seconds of audio at rate Hz.
func NewRollingBuffer(seconds float64, rate int) *RollingBuffer {
	c := SamplesFor(seconds, rate)
	return &RollingBuffer{buf: make([]float32, 0, c), capacity: c, rate: rate}
}

// Append adds samples, evicting the oldest ones beyond capacity.
func (b *RollingBuffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(samples) >= b.capacity {
		b.buf = append(b.buf[:0], samples[len(samples)-b.capacity:]...)
		return
	}
	if overflow := len(b.buf) + len(samples) - b.capacity; overflow > 0 {
		n := copy(b.buf, b.buf[overflow:])
		b.buf = b.buf[:n]
	}
	b.buf = append(b.buf, samples...)
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (b *RollingBuffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, len(b.buf))
	copy(out, b.buf)
	return out
}

// Len returns the number of buffered samples.
func (b *RollingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Capacity returns the maximum number of samples kept.
func (b *RollingBuffer) Capacity() int { return b.capacity }

// SampleRate returns the buffer's sample rate in Hz.
func (b *RollingBuffer) SampleRate() int { return b.rate }
