package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/audio/mock"
)

func TestReopenSource_RestartsAfterFailure(t *testing.T) {
	t.Parallel()
	first := &mock.Source{
		Windows: []audio.Window{{Samples: []float32{0.1}, SampleRate: 16000}},
		Err:     errors.New("device unplugged"),
	}
	second := &mock.Source{
		Windows: []audio.Window{{Samples: []float32{0.2}, SampleRate: 16000}},
	}
	opens := 0
	open := func(context.Context) (audio.Source, error) {
		opens++
		switch opens {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("busy")
		default:
			return second, nil
		}
	}
	src := audio.NewReopenSource(open, time.Millisecond)
	ctx := context.Background()

	w, err := src.Next(ctx)
	if err != nil || w.Samples[0] != 0.1 {
		t.Fatalf("first window = %v, %v", w, err)
	}
	w, err = src.Next(ctx)
	if err != nil || w.Samples[0] != 0.2 {
		t.Fatalf("second window = %v, %v", w, err)
	}
	if opens != 3 {
		t.Errorf("opens = %d, want 3", opens)
	}
	if !first.Closed {
		t.Error("failed source must be closed")
	}
	if err := src.Close(); err != nil || !second.Closed {
		t.Errorf("Close = %v, closed=%v", err, second.Closed)
	}
}

func TestReopenSource_StopsOnCancel(t *testing.T) {
	t.Parallel()
	open := func(context.Context) (audio.Source, error) { return nil, errors.New("no device") }
	src := audio.NewReopenSource(open, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close on never-opened source = %v", err)
	}
}
