package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// BlockReason names the stage that stopped a gate-ready window from alerting.
type BlockReason string

const (
	BlockedByNone        BlockReason = "none"
	BlockedByVerifier    BlockReason = "verifier"
	BlockedByValidator   BlockReason = "ollama"
	BlockedByCalibration BlockReason = "calibration"
)

// Status is the live diagnostic snapshot written by the processing loop
// while calibration is active. It is advisory and never validated on read.
type Status struct {
	UpdatedAt       string           `json:"updated_at"`
	Phase           Phase            `json:"phase"`
	IntervalSeconds int              `json:"interval_seconds"`
	Candidate       bool             `json:"candidate"`
	Confirmed       bool             `json:"confirmed"`
	Suppressed      bool             `json:"suppressed_by_cat"`
	GateReady       bool             `json:"gate_ready"`
	VerifierPassed  bool             `json:"verifier_passed"`
	WouldAlert      bool             `json:"would_alert"`
	BlockedBy       BlockReason      `json:"alert_blocked_by"`
	PrimaryScore    float64          `json:"primary_score"`
	BabyScore       float64          `json:"baby_score"`
	CatScore        float64          `json:"cat_score"`
	Context         string           `json:"context"`
	EffectiveParams map[string]Value `json:"effective_params"`
}

// StampNow formats t the way status and control timestamps are written.
func StampNow(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// WriteStatus overwrites the status file with st.
func (s *Store) WriteStatus(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: encode status: %w", err)
	}
	if err := atomicWrite(s.StatusPath(), data); err != nil {
		return fmt.Errorf("calibration: write status: %w", err)
	}
	return nil
}

// ReadStatus returns the last written status. The boolean is false when the
// file is absent, malformed or not a JSON object.
func (s *Store) ReadStatus() (Status, bool) {
	data, err := os.ReadFile(s.StatusPath())
	if err != nil {
		return Status{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Status{}, false
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, false
	}
	return st, true
}
