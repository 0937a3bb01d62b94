package monitor

import (
	"time"

	"github.com/MrWong99/cryguard/internal/calibration"
	"github.com/MrWong99/cryguard/internal/decision"
	"github.com/MrWong99/cryguard/internal/gating"
)

// EffectiveParams returns the full parameter set in force, keyed by the
// calibration parameter names.
func EffectiveParams(gate gating.Params, verify decision.Thresholds) map[string]calibration.Value {
	return map[string]calibration.Value{
		calibration.ParamPrimaryCryThreshold:  calibration.FloatValue(gate.Primary),
		calibration.ParamConfirmN:             calibration.IntValue(int64(gate.ConfirmN)),
		calibration.ParamConfirmM:             calibration.IntValue(int64(gate.ConfirmM)),
		calibration.ParamAlertCooldownSeconds: calibration.IntValue(int64(gate.Cooldown / time.Second)),
		calibration.ParamCryThreshold:         calibration.FloatValue(verify.Baby),
		calibration.ParamCatThreshold:         calibration.FloatValue(verify.CatSuppress),
		calibration.ParamCatWeight:            calibration.FloatValue(verify.CatWeight),
		calibration.ParamMarginThreshold:      calibration.FloatValue(verify.Margin),
	}
}

// buildStatus renders the live snapshot for one cycle.
func (l *Loop) buildStatus(ctrl calibration.Control, verify decision.Thresholds, res CycleResult, at time.Time) calibration.Status {
	r := res.Result.Round(4)
	return calibration.Status{
		UpdatedAt:       calibration.StampNow(at),
		Phase:           ctrl.Phase,
		IntervalSeconds: ctrl.IntervalSeconds,
		Candidate:       res.Decision.Candidate,
		Confirmed:       res.Decision.Confirmed,
		Suppressed:      res.Decision.Suppressed,
		GateReady:       res.Decision.Ready,
		VerifierPassed:  res.VerifierPassed,
		WouldAlert:      res.Decision.Ready && res.VerifierPassed,
		BlockedBy:       res.BlockedBy,
		PrimaryScore:    r.Primary,
		BabyScore:       r.Baby,
		CatScore:        r.Cat,
		Context:         res.Context,
		EffectiveParams: EffectiveParams(l.engine.Params(), verify),
	}
}

// maybeWriteStatus writes a snapshot at most once per control interval.
func (l *Loop) maybeWriteStatus(ctrl calibration.Control, verify decision.Thresholds, res CycleResult) {
	now := l.now()
	if now.Before(l.statusNextAt) {
		return
	}
	st := l.buildStatus(ctrl, verify, res, now)
	if err := l.control.WriteStatus(st); err != nil {
		l.logger().Warn("monitor: write calibration status failed", "err", err)
	}
	if l.statusSink != nil {
		l.statusSink(st)
	}
	interval := max(calibration.MinInterval, ctrl.IntervalSeconds)
	l.statusNextAt = now.Add(time.Duration(interval) * time.Second)
}
