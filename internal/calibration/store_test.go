package calibration_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cryguard/internal/calibration"
)

func newStore(t *testing.T) *calibration.Store {
	t.Helper()
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return calibration.NewStore(filepath.Join(t.TempDir(), "artifacts"), calibration.WithClock(func() time.Time { return fixed }))
}

func writeControl(t *testing.T, s *calibration.Store, body string) {
	t.Helper()
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.ControlPath(), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingReturnsDefaults(t *testing.T) {
	t.Parallel()
	got := newStore(t).Load()
	if !got.Equal(calibration.DefaultControl()) {
		t.Errorf("Load = %+v, want defaults", got)
	}
	if got.Phase != calibration.Phase1 || got.IntervalSeconds != 15 || got.Active {
		t.Errorf("defaults = %+v", got)
	}
}

func TestLoad_CorruptReturnsDefaults(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	for _, body := range []string{"{not json", "[1,2]", "null", `"text"`} {
		writeControl(t, s, body)
		if got := s.Load(); !got.Equal(calibration.DefaultControl()) {
			t.Errorf("Load(%q) = %+v, want defaults", body, got)
		}
	}
}

func TestLoad_NormalisesFields(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	writeControl(t, s, `{
		"active": 1,
		"phase": " PHASE2 ",
		"interval_seconds": 9000,
		"overrides": {"cat_weight": "1.25", "CONFIRM_N": 3, "MARGIN_THRESHOLD": "wide", "CRY_THRESHOLD": 0.6}
	}`)
	got := s.Load()
	if !got.Active || got.Phase != calibration.Phase2 || got.IntervalSeconds != 600 {
		t.Errorf("Load = %+v", got)
	}
	if len(got.Overrides) != 2 {
		t.Fatalf("Overrides = %v, want CAT_WEIGHT and CRY_THRESHOLD only", got.Overrides)
	}
	if got.Overrides["CAT_WEIGHT"].Float() != 1.25 || got.Overrides["CRY_THRESHOLD"].Float() != 0.6 {
		t.Errorf("Overrides = %v", got.Overrides)
	}
}

func TestLoad_UnknownPhaseFallsBack(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	writeControl(t, s, `{"active": true, "phase": "phase9", "interval_seconds": "abc", "overrides": {"CONFIRM_M": 4}}`)
	got := s.Load()
	if got.Phase != calibration.Phase1 || got.IntervalSeconds != 15 {
		t.Errorf("Load = %+v, want phase1 with default interval", got)
	}
	if got.Overrides["CONFIRM_M"].Int() != 4 {
		t.Errorf("Overrides = %v", got.Overrides)
	}
}

func TestStart(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	if _, err := s.Start("phase3", 10); !errors.Is(err, calibration.ErrInvalidPhase) {
		t.Fatalf("Start(phase3) err = %v, want ErrInvalidPhase", err)
	}
	if _, err := os.Stat(s.ControlPath()); !os.IsNotExist(err) {
		t.Error("failed start must not write the control file")
	}

	c, err := s.Start("Phase2", 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Active || c.Phase != calibration.Phase2 || c.IntervalSeconds != 2 || len(c.Overrides) != 0 {
		t.Errorf("Start = %+v", c)
	}
	if !s.Load().Equal(c) {
		t.Errorf("Load = %+v, want %+v", s.Load(), c)
	}
}

func TestStart_ClearsOverrides(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase1", 15); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.SetOverride("CONFIRM_N", "4"); err != nil {
		t.Fatal(err)
	}
	c, err := s.Start("phase1", 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Overrides) != 0 || len(s.Load().Overrides) != 0 {
		t.Errorf("restart kept overrides: %v", s.Load().Overrides)
	}
}

func TestSetOverride_Inactive(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _, _, err := s.SetOverride("CAT_WEIGHT", "1.4")
	if !errors.Is(err, calibration.ErrCalibrationInactive) {
		t.Errorf("err = %v, want ErrCalibrationInactive", err)
	}
	if err.Error() != "calibration is not active" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestSetOverride_Phase2Float(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase2", 15); err != nil {
		t.Fatal(err)
	}
	c, key, val, err := s.SetOverride(" cat_weight ", "1.4")
	if err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if key != "CAT_WEIGHT" || val.Float() != 1.4 || val.Kind() != calibration.KindFloat {
		t.Errorf("SetOverride = %q %v", key, val)
	}
	if c.Overrides["CAT_WEIGHT"].Float() != 1.4 {
		t.Errorf("returned control overrides = %v", c.Overrides)
	}
	if got := s.Load().Overrides["CAT_WEIGHT"].Float(); got != 1.4 {
		t.Errorf("Load().Overrides[CAT_WEIGHT] = %v, want 1.4", got)
	}
}

func TestSetOverride_UnknownParameter(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase1", 15); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := s.SetOverride("CAT_WEIGHT", "1")
	if !errors.Is(err, calibration.ErrUnknownParameter) {
		t.Fatalf("err = %v, want ErrUnknownParameter", err)
	}
	want := "parameter not allowed for phase1. allowed: ALERT_COOLDOWN_SECONDS, CONFIRM_M, CONFIRM_N, PRIMARY_CRY_THRESHOLD"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestSetOverride_InvalidValues(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase1", 15); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, raw, msg string
	}{
		{"CONFIRM_N", "-1", "integer value must be >= 0"},
		{"CONFIRM_N", "2.5", ""},
		{"PRIMARY_CRY_THRESHOLD", "high", ""},
		{"PRIMARY_CRY_THRESHOLD", "NaN", ""},
		{"CONFIRM_M", "1125899906842624", "CONFIRM_M must be <= 1000"},
		{"CONFIRM_N", "1001", "CONFIRM_N must be <= 1000"},
		{"ALERT_COOLDOWN_SECONDS", "9300000000", "ALERT_COOLDOWN_SECONDS must be <= 86400"},
		{"CONFIRM_M", "99999999999999999999", ""},
	}
	for _, tc := range tests {
		_, _, _, err := s.SetOverride(tc.key, tc.raw)
		if !errors.Is(err, calibration.ErrInvalidValue) {
			t.Errorf("SetOverride(%s, %q) err = %v, want ErrInvalidValue", tc.key, tc.raw, err)
			continue
		}
		if tc.msg != "" && err.Error() != tc.msg {
			t.Errorf("message = %q, want %q", err.Error(), tc.msg)
		}
	}
	if len(s.Load().Overrides) != 0 {
		t.Errorf("failed overrides were persisted: %v", s.Load().Overrides)
	}
}

func TestStop_ReplaySummary(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase1", 12); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.SetOverride("PRIMARY_CRY_THRESHOLD", "0.7"); err != nil {
		t.Fatal(err)
	}

	prev, cur, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !prev.Active || len(prev.Overrides) != 1 {
		t.Errorf("previous = %+v", prev)
	}
	if cur.Active || cur.Phase != calibration.Phase1 || cur.IntervalSeconds != 12 || len(cur.Overrides) != 0 {
		t.Errorf("current = %+v", cur)
	}

	summary := calibration.StopSummary(prev)
	for _, want := range []string{"/cal_start phase1 12", "/cal_set PRIMARY_CRY_THRESHOLD 0.7"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if !s.Load().Equal(cur) {
		t.Errorf("Load = %+v, want %+v", s.Load(), cur)
	}
}

func TestSetInterval(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase2", 15); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.SetOverride("MARGIN_THRESHOLD", "0.2"); err != nil {
		t.Fatal(err)
	}
	c, err := s.SetInterval(1000)
	if err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if c.IntervalSeconds != 600 || !c.Active || c.Overrides["MARGIN_THRESHOLD"].Float() != 0.2 {
		t.Errorf("SetInterval = %+v", c)
	}
}

func TestSaveLoad_Idempotent(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	c := calibration.Control{
		Active:          true,
		Phase:           calibration.Phase1,
		IntervalSeconds: 30,
		Overrides: map[string]calibration.Value{
			"CONFIRM_N":             calibration.IntValue(2),
			"PRIMARY_CRY_THRESHOLD": calibration.FloatValue(1),
		},
	}
	if err := s.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first := s.Load()
	if !first.Equal(c) {
		t.Fatalf("Load = %+v, want %+v", first, c)
	}
	if err := s.Save(first); err != nil {
		t.Fatal(err)
	}
	if !s.Load().Equal(first) {
		t.Errorf("save(load()) changed state: %+v", s.Load())
	}

	raw, err := os.ReadFile(s.ControlPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"updated_at": "2026-03-04T05:06:07Z"`) {
		t.Errorf("control file missing timestamp:\n%s", raw)
	}
	if !strings.Contains(string(raw), `"PRIMARY_CRY_THRESHOLD": 1.0`) {
		t.Errorf("float override not written with a decimal point:\n%s", raw)
	}
}

func TestConcurrentOverrides(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase2", 15); err != nil {
		t.Fatal(err)
	}
	keys := []string{"CRY_THRESHOLD", "CAT_THRESHOLD", "CAT_WEIGHT", "MARGIN_THRESHOLD"}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, _, err := s.SetOverride(k, "0.5"); err != nil {
				t.Errorf("SetOverride(%s): %v", k, err)
			}
		}()
	}
	wg.Wait()
	if got := len(s.Load().Overrides); got != len(keys) {
		t.Errorf("len(Overrides) = %d, want %d (lost update)", got, len(keys))
	}
}

func TestSetOverride_UpperBoundsInclusive(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.Start("phase1", 15); err != nil {
		t.Fatal(err)
	}
	for _, kv := range [][2]string{{"CONFIRM_M", "1000"}, {"ALERT_COOLDOWN_SECONDS", "86400"}} {
		if _, _, _, err := s.SetOverride(kv[0], kv[1]); err != nil {
			t.Errorf("SetOverride(%s, %s): %v", kv[0], kv[1], err)
		}
	}
}

func TestLoad_DropsOutOfRangeOverrides(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	writeControl(t, s, `{"active": true, "phase": "phase1", "interval_seconds": 15,
		"overrides": {"CONFIRM_M": 1125899906842624, "CONFIRM_N": 2}}`)

	c := s.Load()
	if _, ok := c.Overrides["CONFIRM_M"]; ok {
		t.Errorf("out-of-range CONFIRM_M kept: %v", c.Overrides)
	}
	if v, ok := c.Overrides["CONFIRM_N"]; !ok || v.Int() != 2 {
		t.Errorf("CONFIRM_N = %v, %v; want 2", v, ok)
	}
}
