package calibration

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
	"time"
)

// Interval bounds for status pushes and live status writes.
const (
	DefaultInterval = 15
	MinInterval     = 2
	MaxInterval     = 600
)

// ClampInterval limits n to [MinInterval, MaxInterval].
func ClampInterval(n int) int {
	return max(MinInterval, min(n, MaxInterval))
}

// Control is the persisted calibration state shared between the processing
// loop (reader) and the command path (writer).
type Control struct {
	Active          bool
	Phase           Phase
	IntervalSeconds int
	Overrides       map[string]Value
}

// DefaultControl returns the inactive phase1 state used when nothing is
// persisted.
func DefaultControl() Control {
	return Control{
		Phase:           Phase1,
		IntervalSeconds: DefaultInterval,
		Overrides:       map[string]Value{},
	}
}

// Override returns the override for name when calibration is active in phase.
func (c Control) Override(phase Phase, name string) (Value, bool) {
	if !c.Active || c.Phase != phase {
		return Value{}, false
	}
	v, ok := c.Overrides[name]
	return v, ok
}

// Equal reports whether c and o hold the same structural state.
func (c Control) Equal(o Control) bool {
	return c.Active == o.Active &&
		c.Phase == o.Phase &&
		c.IntervalSeconds == o.IntervalSeconds &&
		maps.Equal(c.Overrides, o.Overrides)
}

func (c Control) clone() Control {
	c.Overrides = maps.Clone(c.Overrides)
	if c.Overrides == nil {
		c.Overrides = map[string]Value{}
	}
	return c
}

type controlFile struct {
	Active          bool             `json:"active"`
	Phase           Phase            `json:"phase"`
	IntervalSeconds int              `json:"interval_seconds"`
	Overrides       map[string]Value `json:"overrides"`
	UpdatedAt       string           `json:"updated_at"`
}

func encodeControl(c Control, now time.Time) ([]byte, error) {
	overrides := c.Overrides
	if overrides == nil {
		overrides = map[string]Value{}
	}
	return json.MarshalIndent(controlFile{
		Active:          c.Active,
		Phase:           c.Phase,
		IntervalSeconds: c.IntervalSeconds,
		Overrides:       overrides,
		UpdatedAt:       now.UTC().Format("2006-01-02T15:04:05Z"),
	}, "", "  ")
}

// decodeControl parses a persisted control file leniently. Unknown phases fall
// back to phase1, bad intervals to the default, and override entries that do
// not belong to the phase or fail to parse are dropped.
func decodeControl(data []byte) (Control, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return DefaultControl(), false
	}

	c := DefaultControl()
	if p, ok := raw["phase"]; ok {
		if phase, err := ParsePhase(textOf(p)); err == nil {
			c.Phase = phase
		}
	}
	c.IntervalSeconds = coerceInterval(raw["interval_seconds"])
	c.Active = truthy(raw["active"])

	if m, ok := raw["overrides"].(map[string]any); ok {
		for k, v := range m {
			key := strings.ToUpper(strings.TrimSpace(k))
			prm, ok := c.Phase.Lookup(key)
			if !ok {
				continue
			}
			val, err := prm.Parse(textOf(v))
			if err != nil {
				continue
			}
			c.Overrides[key] = val
		}
	}
	return c, true
}

func coerceInterval(v any) int {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return ClampInterval(int(n))
		}
		if f, err := x.Float64(); err == nil && !math.IsInf(f, 0) {
			return ClampInterval(int(f))
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return ClampInterval(n)
		}
	case bool:
		if x {
			return ClampInterval(1)
		}
		return ClampInterval(0)
	}
	return DefaultInterval
}

// truthy mirrors loose boolean coercion: false, zero, empty and null are
// false, everything else is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
