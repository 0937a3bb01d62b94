package notify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpegMP3 converts the clip at path to a 128 kbit/s MP3 next to the
// source and returns the new path. MP3 inputs are returned unchanged.
func FFmpegMP3(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return path, nil
	}
	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-codec:a", "libmp3lame", "-b:a", "128k",
		target,
	)
	var stderr, stdout bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stdout
	runErr := cmd.Run()
	if _, statErr := os.Stat(target); runErr != nil || statErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = "unknown ffmpeg error"
		}
		return "", fmt.Errorf("notify: failed converting audio to mp3: %s", detail)
	}
	return target, nil
}
