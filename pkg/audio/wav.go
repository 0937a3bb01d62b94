package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by [ReadWAV] when the input lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// WriteWAV encodes mono samples as a 16-bit PCM WAV stream. Writers that
// cannot seek are fed from an in-memory encoding.
func WriteWAV(w io.Writer, samples []float32, rate int) error {
	if ws, ok := w.(io.WriteSeeker); ok {
		return encodeWAV(ws, samples, rate)
	}
	var sb seekBuffer
	if err := encodeWAV(&sb, samples, rate); err != nil {
		return err
	}
	if _, err := w.Write(sb.buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	return nil
}

func encodeWAV(ws io.WriteSeeker, samples []float32, rate int) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(toInt16(s))
	}
	enc := wav.NewEncoder(ws, rate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finish wav: %w", err)
	}
	return nil
}

// EncodeWAV returns samples as an in-memory WAV file.
func EncodeWAV(samples []float32, rate int) []byte {
	var sb seekBuffer
	_ = encodeWAV(&sb, samples, rate)
	return sb.buf
}

// SaveWAV writes samples to path, creating parent directories.
func SaveWAV(path string, samples []float32, rate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audio: create clip dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create clip: %w", err)
	}
	if err := encodeWAV(f, samples, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWAV decodes an integer PCM WAV stream (8, 16, 24 or 32 bit) into mono
// float32 samples, downmixing multi-channel input. It returns the samples
// and their rate. Readers that cannot seek are buffered in memory.
func ReadWAV(r io.Reader) ([]float32, int, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, 0, fmt.Errorf("audio: read wav: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if dec.Err() != nil || dec.NumChans < 1 {
		return nil, 0, ErrNotWAV
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, 0, fmt.Errorf("audio: unsupported wav format %d", dec.WavAudioFormat)
	}
	bits := int(dec.BitDepth)
	switch bits {
	case 8, 16, 24, 32:
	default:
		return nil, 0, fmt.Errorf("audio: unsupported bit depth %d", bits)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: wav missing data chunk: %w", err)
	}
	out := make([]float32, len(pcm.Data))
	scale := float32(int64(1) << (bits - 1))
	for i, v := range pcm.Data {
		if bits == 8 {
			// 8-bit PCM is unsigned.
			v -= 128
		}
		out[i] = float32(v) / scale
	}
	return DownmixInterleaved(out, int(dec.NumChans)), int(dec.SampleRate), nil
}

// LoadWAV reads the WAV file at path.
func LoadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadWAV(f)
}

// seekBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// patches chunk sizes after the samples are written.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.buf))
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	b.pos = int(next)
	return next, nil
}
