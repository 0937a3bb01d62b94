package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/cryguard/pkg/audio"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1}
	got := audio.PCM16ToFloat32(audio.Float32ToPCM16(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1.0/16384 {
			t.Errorf("sample %d: got %v, want ~%v", i, got[i], in[i])
		}
	}
}

func TestFloat32ToPCM16_Clips(t *testing.T) {
	got := audio.PCM16ToFloat32(audio.Float32ToPCM16([]float32{3, -3}))
	if got[0] < 0.999 || got[1] > -0.999 {
		t.Errorf("clipped samples = %v, want ~[1 -1]", got)
	}
}

func TestPCM16ToFloat32_OddByte(t *testing.T) {
	got := audio.PCM16ToFloat32([]byte{0, 0, 7})
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestDownmixInterleaved(t *testing.T) {
	got := audio.DownmixInterleaved([]float32{0.2, 0.4, -0.2, -0.4}, 2)
	want := []float32{0.3, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResample_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2}
	got := audio.Resample(in, 16000, 16000)
	if &got[0] != &in[0] {
		t.Error("same-rate resample should return the input slice")
	}
}

func TestResample_Downsample(t *testing.T) {
	in := make([]float32, 48000)
	got := audio.Resample(in, 48000, 16000)
	if len(got) != 16000 {
		t.Errorf("len = %d, want 16000", len(got))
	}
}

func TestResample_Interpolates(t *testing.T) {
	got := audio.Resample([]float32{0, 1}, 1, 2)
	want := []float32{0, 0.5, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConverter(t *testing.T) {
	c := audio.Converter{TargetRate: 8000}
	got := c.Convert(make([]float32, 32000), 16000, 2)
	if len(got) != 8000 {
		t.Errorf("len = %d, want 8000", len(got))
	}
}
