package notify

import (
	"context"
	"testing"
)

func TestFFmpegMP3_PassesThroughMP3(t *testing.T) {
	t.Parallel()
	got, err := FFmpegMP3(context.Background(), "/tmp/clip.MP3")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/clip.MP3" {
		t.Errorf("FFmpegMP3 = %q", got)
	}
}
