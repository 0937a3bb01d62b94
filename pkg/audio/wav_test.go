package audio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/cryguard/pkg/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.75}
	var buf bytes.Buffer
	if err := audio.WriteWAV(&buf, in, 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	if buf.Len() != 44+len(in)*2 {
		t.Errorf("wav size = %d, want %d", buf.Len(), 44+len(in)*2)
	}

	got, rate, err := audio.ReadWAV(&buf)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1.0/16384 {
			t.Errorf("sample %d: got %v, want ~%v", i, got[i], in[i])
		}
	}
}

func TestReadWAV_Garbage(t *testing.T) {
	_, _, err := audio.ReadWAV(bytes.NewReader([]byte("definitely not audio")))
	if !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestSaveAndLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clip.wav")
	if err := audio.SaveWAV(path, []float32{0.5, -0.5}, 8000); err != nil {
		t.Fatalf("SaveWAV: %v", err)
	}
	got, rate, err := audio.LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if rate != 8000 || len(got) != 2 {
		t.Errorf("LoadWAV = %d samples @ %d Hz, want 2 @ 8000", len(got), rate)
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	got := audio.EncodeWAV([]float32{0.1, 0.2, 0.3}, 16000)
	if len(got) != 44+3*2 {
		t.Fatalf("len = %d, want %d", len(got), 44+3*2)
	}
	if string(got[0:4]) != "RIFF" || string(got[8:12]) != "WAVE" || string(got[36:40]) != "data" {
		t.Errorf("header = %q", got[:44])
	}
}

func TestReadWAV_StereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{16384, 0, -16384, -16384},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.Close()

	got, rate, err := audio.LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if rate != 8000 || len(got) != 2 {
		t.Fatalf("LoadWAV = %d samples @ %d Hz, want 2 @ 8000", len(got), rate)
	}
	if got[0] != 0.25 || got[1] != -0.5 {
		t.Errorf("samples = %v, want [0.25 -0.5]", got)
	}
}

func TestSliceSource(t *testing.T) {
	ctx := context.Background()
	src := audio.NewSliceSource([]float32{1, 2, 3, 4, 5}, 2, 1, false)

	w, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(w.Samples) != 2 || w.Samples[0] != 1 {
		t.Errorf("first window = %v, want [1 2]", w.Samples)
	}
	_, _ = src.Next(ctx)
	last, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if last.Samples[0] != 5 || last.Samples[1] != 0 {
		t.Errorf("last window = %v, want zero-padded [5 0]", last.Samples)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestCapture(t *testing.T) {
	src := audio.NewSliceSource(make([]float32, 10), 4, 1, true)
	got, err := audio.Capture(context.Background(), src, 2.5, 4)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}
