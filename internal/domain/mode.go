package domain

import "fmt"

// AdvanceMode selects who moves the raw values forward.
type AdvanceMode string

const (
	// AdvanceModeSession lets every stream session advance the store after
	// each successful send. N sessions advance N times per interval.
	AdvanceModeSession AdvanceMode = "session"
	// AdvanceModeBroadcast hands advancement to a single broadcaster that
	// ticks once per interval regardless of how many listeners are connected.
	AdvanceModeBroadcast AdvanceMode = "broadcast"
)

func ParseAdvanceMode(s string) (AdvanceMode, error) {
	switch AdvanceMode(s) {
	case AdvanceModeSession, AdvanceModeBroadcast:
		return AdvanceMode(s), nil
	default:
		return "", fmt.Errorf("unknown advance mode %q (want %q or %q)", s, AdvanceModeSession, AdvanceModeBroadcast)
	}
}
