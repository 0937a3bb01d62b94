package calibration

import (
	"fmt"
	"slices"
	"strings"
)

// HelpText returns the /cal command reference.
func HelpText() string {
	return strings.Join([]string{
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
		"phase1 params: " + paramList(Phase1),
		"phase2 params: " + paramList(Phase2),
		fmt.Sprintf("default interval: %ds", DefaultInterval),
	}, "\n")
}

// StopSummary renders the commands that would reconstruct the stopped
// session described by previous.
func StopSummary(previous Control) string {
	lines := []string{
		fmt.Sprintf("Calibration stopped for %s. Alerts re-enabled and .env defaults restored.", previous.Phase),
		"Final command state:",
		fmt.Sprintf("/cal_start %s %d", previous.Phase, previous.IntervalSeconds),
	}
	keys := make([]string, 0, len(previous.Overrides))
	for k := range previous.Overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("/cal_set %s %s", k, previous.Overrides[k]))
	}
	if len(keys) == 0 {
		lines = append(lines, "(no parameter overrides were applied)")
	}
	return strings.Join(lines, "\n")
}

func paramList(p Phase) string {
	names := make([]string, 0, 4)
	for _, prm := range p.Params() {
		names = append(names, prm.Name)
	}
	return joinNames(names)
}

func joinNames(names []string) string { return strings.Join(names, ", ") }
