// Package calibration implements the persisted calibration control surface.
//
// Two JSON files live in the artifact directory: the control file, written
// by operator commands and read by the processing loop once per cycle, and
// the status file, written by the processing loop and read by operator
// commands. Neither side ever fails on a missing or corrupt file; readers
// substitute defaults.
//
// Writes are atomic (temp file and rename) and mutating commands hold an
// advisory file lock for their read-modify-write so that two operator
// processes cannot interleave. The processing loop reads without locking;
// last writer wins.
package calibration

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// File names inside the artifact directory.
const (
	ControlFileName = "calibration_control.json"
	StatusFileName  = "calibration_status.json"
)

// Store reads and writes calibration state under a single directory.
// It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	dir  string
	now  func() time.Time
	lock *flock.Flock
}

// StoreOption is a functional option for [NewStore].
type StoreOption func(*Store)

// WithClock replaces time.Now for updated_at stamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:  dir,
		now:  time.Now,
		lock: flock.New(filepath.Join(dir, ControlFileName+".lock")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// ControlPath returns the control file location.
func (s *Store) ControlPath() string { return filepath.Join(s.dir, ControlFileName) }

// StatusPath returns the status file location.
func (s *Store) StatusPath() string { return filepath.Join(s.dir, StatusFileName) }

// Load returns the persisted control, or [DefaultControl] when the file is
// absent or unparsable.
func (s *Store) Load() Control {
	data, err := os.ReadFile(s.ControlPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("calibration: control unreadable, using defaults", "path", s.ControlPath(), "err", err)
		}
		return DefaultControl()
	}
	c, ok := decodeControl(data)
	if !ok {
		slog.Debug("calibration: control corrupt, using defaults", "path", s.ControlPath())
	}
	return c
}

// Save persists c with a fresh updated_at timestamp.
func (s *Store) Save(c Control) error {
	data, err := encodeControl(c, s.now())
	if err != nil {
		return fmt.Errorf("calibration: encode control: %w", err)
	}
	if err := atomicWrite(s.ControlPath(), data); err != nil {
		return fmt.Errorf("calibration: save control: %w", err)
	}
	return nil
}

// Start activates calibration for phase with the clamped interval and no
// overrides. Switching phase always clears overrides.
func (s *Store) Start(phase string, intervalSeconds int) (Control, error) {
	p, err := ParsePhase(phase)
	if err != nil {
		return Control{}, err
	}
	c := Control{
		Active:          true,
		Phase:           p,
		IntervalSeconds: ClampInterval(intervalSeconds),
		Overrides:       map[string]Value{},
	}
	err = s.mutate(func(Control) (Control, error) { return c, nil })
	return c, err
}

// Stop deactivates calibration, keeping phase and interval and clearing
// overrides. It returns the state before and after.
func (s *Store) Stop() (previous, current Control, err error) {
	err = s.mutate(func(prev Control) (Control, error) {
		previous = prev
		current = Control{
			Phase:           prev.Phase,
			IntervalSeconds: prev.IntervalSeconds,
			Overrides:       map[string]Value{},
		}
		return current, nil
	})
	return previous, current, err
}

// SetInterval changes only the status interval.
func (s *Store) SetInterval(intervalSeconds int) (Control, error) {
	var out Control
	err := s.mutate(func(prev Control) (Control, error) {
		out = prev.clone()
		out.IntervalSeconds = ClampInterval(intervalSeconds)
		return out, nil
	})
	return out, err
}

// SetOverride records one parameter override for the active phase. It
// returns the updated control, the normalised (upper-cased) key and the
// parsed value.
func (s *Store) SetOverride(parameter, raw string) (Control, string, Value, error) {
	var (
		out Control
		key = strings.ToUpper(strings.TrimSpace(parameter))
		val Value
	)
	err := s.mutate(func(prev Control) (Control, error) {
		if !prev.Active {
			return prev, ErrCalibrationInactive
		}
		prm, ok := prev.Phase.Lookup(key)
		if !ok {
			return prev, unknownParameter(prev.Phase)
		}
		v, err := prm.Parse(raw)
		if err != nil {
			return prev, err
		}
		val = v
		out = prev.clone()
		out.Overrides[key] = v
		return out, nil
	})
	if err != nil {
		return Control{}, "", Value{}, err
	}
	return out, key, val, nil
}

// mutate runs fn under the control file lock and saves its result. Errors
// returned by fn abort without writing.
func (s *Store) mutate(fn func(Control) (Control, error)) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("calibration: create dir: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("calibration: lock control: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("calibration: unlock control", "err", err)
		}
	}()

	next, err := fn(s.Load())
	if err != nil {
		return err
	}
	return s.Save(next)
}

// atomicWrite writes data to a temp file in the target directory and renames
// it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cryguard-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
