package calibration_test

import (
	"os"
	"strings"
	"testing"

	"github.com/MrWong99/cryguard/internal/calibration"
)

func TestHelpText(t *testing.T) {
	t.Parallel()
	got := calibration.HelpText()
	want := strings.Join([]string{
		"Calibration commands:",
		"/cal",
		"/cal_start phase1 [interval_sec]",
		"/cal_start phase2 [interval_sec]",
		"/cal_set <param> <value>",
		"/cal_params",
		"/cal_status",
		"/cal_watch [interval_sec]",
		"/cal_watch_stop",
		"/cal_stop",
		"",
		"phase1 params: PRIMARY_CRY_THRESHOLD, CONFIRM_N, CONFIRM_M, ALERT_COOLDOWN_SECONDS",
		"phase2 params: CRY_THRESHOLD, CAT_THRESHOLD, CAT_WEIGHT, MARGIN_THRESHOLD",
		"default interval: 15s",
	}, "\n")
	if got != want {
		t.Errorf("HelpText mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestStopSummary_NoOverrides(t *testing.T) {
	t.Parallel()
	c := calibration.DefaultControl()
	c.Phase = calibration.Phase2
	c.IntervalSeconds = 30
	want := "Calibration stopped for phase2. Alerts re-enabled and .env defaults restored.\n" +
		"Final command state:\n" +
		"/cal_start phase2 30\n" +
		"(no parameter overrides were applied)"
	if got := calibration.StopSummary(c); got != want {
		t.Errorf("StopSummary =\n%s\nwant\n%s", got, want)
	}
}

func TestStopSummary_SortedOverrides(t *testing.T) {
	t.Parallel()
	c := calibration.Control{
		Phase:           calibration.Phase1,
		IntervalSeconds: 15,
		Overrides: map[string]calibration.Value{
			"PRIMARY_CRY_THRESHOLD": calibration.FloatValue(0.7),
			"CONFIRM_N":             calibration.IntValue(2),
		},
	}
	got := calibration.StopSummary(c)
	lines := strings.Split(got, "\n")
	if len(lines) != 5 {
		t.Fatalf("StopSummary lines = %d:\n%s", len(lines), got)
	}
	if lines[3] != "/cal_set CONFIRM_N 2" || lines[4] != "/cal_set PRIMARY_CRY_THRESHOLD 0.7" {
		t.Errorf("override lines = %q", lines[3:])
	}
}

func TestValueString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    calibration.Value
		want string
	}{
		{calibration.FloatValue(0.7), "0.7"},
		{calibration.FloatValue(1), "1.0"},
		{calibration.FloatValue(-2), "-2.0"},
		{calibration.FloatValue(0.125), "0.125"},
		{calibration.IntValue(60), "60"},
	}
	for _, tc := range tests {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestParsePhase(t *testing.T) {
	t.Parallel()
	if p, err := calibration.ParsePhase(" PHASE1 "); err != nil || p != calibration.Phase1 {
		t.Errorf("ParsePhase = %q, %v", p, err)
	}
	if _, err := calibration.ParsePhase(""); err == nil {
		t.Error("ParsePhase(\"\") should fail")
	}
	if got := calibration.Phase2.AllowedNames(); strings.Join(got, ",") != "CAT_THRESHOLD,CAT_WEIGHT,CRY_THRESHOLD,MARGIN_THRESHOLD" {
		t.Errorf("AllowedNames = %v", got)
	}
}

func TestFormatOverrides(t *testing.T) {
	t.Parallel()
	got := calibration.FormatOverrides(map[string]calibration.Value{
		"CONFIRM_M": calibration.IntValue(5),
		"CONFIRM_N": calibration.IntValue(3),
	})
	if got != "{CONFIRM_M=5, CONFIRM_N=3}" {
		t.Errorf("FormatOverrides = %q", got)
	}
	if calibration.FormatOverrides(nil) != "{}" {
		t.Error("empty overrides should format as {}")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, ok := s.ReadStatus(); ok {
		t.Fatal("ReadStatus on missing file should report no data")
	}

	want := calibration.Status{
		UpdatedAt:       "2026-03-04T05:06:07Z",
		Phase:           calibration.Phase2,
		IntervalSeconds: 5,
		GateReady:       true,
		BlockedBy:       calibration.BlockedByVerifier,
		PrimaryScore:    0.9,
		EffectiveParams: map[string]calibration.Value{
			"CONFIRM_N":  calibration.IntValue(3),
			"CAT_WEIGHT": calibration.FloatValue(1),
		},
	}
	if err := s.WriteStatus(want); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	got, ok := s.ReadStatus()
	if !ok {
		t.Fatal("ReadStatus reported no data")
	}
	if got.Phase != want.Phase || got.BlockedBy != want.BlockedBy || !got.GateReady || got.PrimaryScore != 0.9 {
		t.Errorf("ReadStatus = %+v", got)
	}
	if got.EffectiveParams["CONFIRM_N"] != calibration.IntValue(3) || got.EffectiveParams["CAT_WEIGHT"] != calibration.FloatValue(1) {
		t.Errorf("EffectiveParams = %v", got.EffectiveParams)
	}
}

func TestReadStatus_Malformed(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, body := range []string{"{", "[]", "null", `{"phase": 7}`} {
		if err := os.WriteFile(s.StatusPath(), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, ok := s.ReadStatus(); ok {
			t.Errorf("ReadStatus(%q) reported data", body)
		}
	}
}
