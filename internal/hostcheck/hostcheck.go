// Package hostcheck reports whether the host has the hardware the monitor
// expects: an NVIDIA GPU for accelerated scorers and an audio input.
package hostcheck

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Checker runs the checks. The zero value is not usable; use [Default] or
// fill every field.
type Checker struct {
	LookPath func(file string) (string, error)
	Output   func(ctx context.Context, name string, args ...string) ([]byte, error)
	Getenv   func(key string) string
	Glob     func(pattern string) ([]string, error)
	Stat     func(name string) (os.FileInfo, error)
}

// Default checks the real host.
func Default() *Checker {
	return &Checker{
		LookPath: exec.LookPath,
		Output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		Getenv: os.Getenv,
		Glob:   filepath.Glob,
		Stat:   os.Stat,
	}
}

// GPU queries nvidia-smi for device names. The detail is either the
// comma-separated names or the reason no GPU is usable.
func GPU(ctx context.Context) (bool, string) { return Default().GPU(ctx) }

// Microphone reports whether an audio input is reachable for device.
func Microphone(device string) (bool, string) { return Default().Microphone(device) }

// GPU implements the package-level [GPU].
func (p *Checker) GPU(ctx context.Context) (bool, string) {
	if _, err := p.LookPath("nvidia-smi"); err != nil {
		return false, "nvidia-smi not found in container"
	}
	out, err := p.Output(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return false, fmt.Sprintf("nvidia-smi failed: %v", err)
	}
	var names []string
	for line := range strings.Lines(string(out)) {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return false, "no GPU devices reported"
	}
	return true, strings.Join(names, ", ")
}

// Microphone implements the package-level [Microphone]. A device given as a
// path must exist. Otherwise a PulseAudio server or an ALSA capture node
// counts as an input.
func (p *Checker) Microphone(device string) (bool, string) {
	device = strings.TrimSpace(device)
	if strings.HasPrefix(device, "/") {
		if _, err := p.Stat(device); err != nil {
			return false, fmt.Sprintf("no input device (%v)", err)
		}
		return true, fmt.Sprintf("device '%s'", device)
	}
	if server := strings.TrimSpace(p.Getenv("PULSE_SERVER")); server != "" {
		if device != "" {
			return true, fmt.Sprintf("pulse source '%s' (%s)", device, server)
		}
		return true, fmt.Sprintf("pulse configured (%s)", server)
	}
	nodes, _ := p.Glob("/dev/snd/pcmC*D*c")
	if len(nodes) > 0 {
		return true, fmt.Sprintf("alsa capture device %s", filepath.Base(nodes[0]))
	}
	return false, "no input device (PULSE_SERVER unset and no ALSA capture device)"
}
