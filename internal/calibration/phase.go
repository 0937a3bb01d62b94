package calibration

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/cryguard/internal/gating"
)

// Phase names a calibration mode. Each phase owns a fixed, disjoint set of
// tunable parameters.
type Phase string

const (
	// Phase1 tunes the debounce gate.
	Phase1 Phase = "phase1"

	// Phase2 tunes the second-stage verifier thresholds.
	Phase2 Phase = "phase2"
)

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	_, ok := phaseParams[p]
	return ok
}

// ParsePhase normalises s (trimmed, lower-cased) and validates it.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", ErrInvalidPhase
	}
	return p, nil
}

// Kind is the numeric type expected for a parameter value.
type Kind int

const (
	// KindFloat values parse as 64-bit floating point.
	KindFloat Kind = iota

	// KindInt values parse as non-negative integers.
	KindInt
)

// String returns "float" or "int".
func (k Kind) String() string {
	if k == KindInt {
		return "int"
	}
	return "float"
}

// Parameter names.
const (
	ParamPrimaryCryThreshold  = "PRIMARY_CRY_THRESHOLD"
	ParamConfirmN             = "CONFIRM_N"
	ParamConfirmM             = "CONFIRM_M"
	ParamAlertCooldownSeconds = "ALERT_COOLDOWN_SECONDS"
	ParamCryThreshold         = "CRY_THRESHOLD"
	ParamCatThreshold         = "CAT_THRESHOLD"
	ParamCatWeight            = "CAT_WEIGHT"
	ParamMarginThreshold      = "MARGIN_THRESHOLD"
)

// Param is one tunable parameter and its expected kind.
type Param struct {
	Name string
	Kind Kind

	// Max bounds integer values. Zero means unbounded.
	Max int64
}

var phaseParams = map[Phase][]Param{
	Phase1: {
		{Name: ParamPrimaryCryThreshold, Kind: KindFloat},
		{Name: ParamConfirmN, Kind: KindInt, Max: gating.MaxConfirmWindow},
		{Name: ParamConfirmM, Kind: KindInt, Max: gating.MaxConfirmWindow},
		{Name: ParamAlertCooldownSeconds, Kind: KindInt, Max: int64(gating.MaxCooldown.Seconds())},
	},
	Phase2: {
		{Name: ParamCryThreshold, Kind: KindFloat},
		{Name: ParamCatThreshold, Kind: KindFloat},
		{Name: ParamCatWeight, Kind: KindFloat},
		{Name: ParamMarginThreshold, Kind: KindFloat},
	},
}

// Params returns the parameters owned by p in display order.
func (p Phase) Params() []Param {
	return slices.Clone(phaseParams[p])
}

// Lookup returns the parameter name within p.
func (p Phase) Lookup(name string) (Param, bool) {
	for _, prm := range phaseParams[p] {
		if prm.Name == name {
			return prm, true
		}
	}
	return Param{}, false
}

// Parse parses raw as the parameter's kind and enforces its bound.
func (prm Param) Parse(raw string) (Value, error) {
	v, err := ParseValue(raw, prm.Kind)
	if err != nil {
		return Value{}, err
	}
	if prm.Kind == KindInt && prm.Max > 0 && v.i > prm.Max {
		return Value{}, invalidValue("%s must be <= %d", prm.Name, prm.Max)
	}
	return v, nil
}

// AllowedNames returns the parameter names of p sorted alphabetically.
func (p Phase) AllowedNames() []string {
	names := make([]string, 0, len(phaseParams[p]))
	for _, prm := range phaseParams[p] {
		names = append(names, prm.Name)
	}
	slices.Sort(names)
	return names
}

// Value is a typed override value.
type Value struct {
	kind Kind
	f    float64
	i    int64
}

// FloatValue returns a floating point Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// IntValue returns an integer Value.
func IntValue(n int64) Value { return Value{kind: KindInt, i: n} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Float returns v as a float64 regardless of kind.
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Int returns v as an int. Float values are truncated.
func (v Value) Int() int {
	if v.kind == KindInt {
		return int(v.i)
	}
	return int(v.f)
}

// String formats v for operator replies: integers plainly, floats always
// with a decimal point ("0.7", "1.0").
func (v Value) String() string {
	if v.kind == KindInt {
		return strconv.FormatInt(v.i, 10)
	}
	s := strconv.FormatFloat(v.f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// MarshalJSON encodes v as a bare JSON number.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalJSON decodes a JSON number. Numbers written without a decimal
// point or exponent decode as integers.
func (v *Value) UnmarshalJSON(b []byte) error {
	text := strings.TrimSpace(string(b))
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			*v = IntValue(n)
			return nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("calibration: value %s is not a number", text)
	}
	*v = FloatValue(f)
	return nil
}

// ParseValue parses raw as kind. Integers must be >= 0.
func ParseValue(raw string, kind Kind) (Value, error) {
	text := strings.TrimSpace(raw)
	if kind == KindInt {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, invalidValue("invalid integer value %q", text)
		}
		if n < 0 {
			return Value{}, invalidValue("integer value must be >= 0")
		}
		return IntValue(n), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, invalidValue("invalid float value %q", text)
	}
	return FloatValue(f), nil
}

// FormatOverrides renders overrides as "{KEY=VAL, KEY=VAL}" sorted by key.
func FormatOverrides(o map[string]Value) string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + o[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatValue renders v the way it appears in replies and replay summaries.
func FormatValue(v Value) string { return v.String() }
