package calibration

import (
	"errors"
	"fmt"
)

// Operator-correctable errors. Their messages are sent verbatim as command
// replies, so they carry no package prefix.
var (
	ErrInvalidPhase        = errors.New("phase must be phase1 or phase2")
	ErrCalibrationInactive = errors.New("calibration is not active")
	ErrUnknownParameter    = errors.New("unknown calibration parameter")
	ErrInvalidValue        = errors.New("invalid calibration value")
)

// userError pairs an operator-facing message with a sentinel for errors.Is.
type userError struct {
	msg      string
	sentinel error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.sentinel }

func invalidValue(format string, args ...any) error {
	return &userError{msg: fmt.Sprintf(format, args...), sentinel: ErrInvalidValue}
}

func unknownParameter(p Phase) error {
	return &userError{
		msg:      fmt.Sprintf("parameter not allowed for %s. allowed: %s", p, joinNames(p.AllowedNames())),
		sentinel: ErrUnknownParameter,
	}
}
