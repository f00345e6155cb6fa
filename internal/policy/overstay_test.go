package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverstayPhaseAt(t *testing.T) {
	endAt := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	graceEnd := endAt.Add(30 * time.Minute) // detected 20 min past end, +10 min grace

	testCases := []struct {
		name     string
		graceEnd time.Time
		now      time.Time
		want     OverstayPhase
	}{
		{"before end", graceEnd, endAt.Add(-time.Minute), OverstayNone},
		{"exactly at end", graceEnd, endAt, OverstayNone},
		{"past end, not detected", time.Time{}, endAt.Add(5 * time.Minute), OverstayGrace},
		{"past end, inside grace", graceEnd, graceEnd.Add(-time.Minute), OverstayGrace},
		{"exactly at grace end", graceEnd, graceEnd, OverstayActionable},
		{"past grace end", graceEnd, graceEnd.Add(time.Hour), OverstayActionable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OverstayPhaseAt(endAt, tc.graceEnd, tc.now))
		})
	}
}
