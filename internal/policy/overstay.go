package policy

import "time"

// OverstayPhase classifies where a booking sits in an overstay episode.
type OverstayPhase string

const (
	// OverstayNone: the booking has not passed its end time.
	OverstayNone OverstayPhase = "NONE"
	// OverstayGrace: past end time, but the grace window has not elapsed
	// (or the overstay has not been detected yet). No action may be taken.
	OverstayGrace OverstayPhase = "GRACE"
	// OverstayActionable: the grace window has elapsed; the host may pick
	// a remediation action.
	OverstayActionable OverstayPhase = "ACTIONABLE"
)

// OverstayPhaseAt maps a booking's end time, the grace window end recorded
// at detection (zero if not yet detected) and the current instant to an
// overstay phase.
func OverstayPhaseAt(endAt, graceEnd, now time.Time) OverstayPhase {
	if !now.After(endAt) {
		return OverstayNone
	}
	if graceEnd.IsZero() || now.Before(graceEnd) {
		return OverstayGrace
	}
	return OverstayActionable
}
