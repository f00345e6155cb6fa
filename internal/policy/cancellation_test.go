package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testCancellation = CancellationConfig{
	GracePeriod: 10 * time.Minute,
	StartCutoff: time.Hour,
}

func TestDecideCancellation(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	startAt := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		now        time.Time
		refundable bool
		reason     string
	}{
		{
			name:       "immediately after creation",
			now:        createdAt.Add(time.Minute),
			refundable: true,
			reason:     ReasonWithinGracePeriod,
		},
		{
			name:       "exactly at grace period end",
			now:        createdAt.Add(10 * time.Minute),
			refundable: true,
			reason:     ReasonWithinGracePeriod,
		},
		{
			name:       "after grace, well before start",
			now:        createdAt.Add(2 * time.Hour),
			refundable: true,
			reason:     ReasonBeforeCutoff,
		},
		{
			name:       "exactly one hour before start",
			now:        startAt.Add(-time.Hour),
			refundable: true,
			reason:     ReasonBeforeCutoff,
		},
		{
			name:       "59 minutes before start",
			now:        startAt.Add(-59 * time.Minute),
			refundable: false,
			reason:     ReasonAfterCutoff,
		},
		{
			name:       "after start",
			now:        startAt.Add(time.Minute),
			refundable: false,
			reason:     ReasonAfterCutoff,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := DecideCancellation(testCancellation, createdAt, startAt, tc.now)
			assert.Equal(t, tc.refundable, d.Refundable)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestDecideCancellation_GraceBeatsCutoff(t *testing.T) {
	// booked 5 minutes before start: a cancellation 4 minutes later falls
	// inside the 1-hour cutoff but is still fully refunded by the grace rule
	startAt := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	createdAt := startAt.Add(-5 * time.Minute)
	now := createdAt.Add(4 * time.Minute)

	d := DecideCancellation(testCancellation, createdAt, startAt, now)

	assert.True(t, d.Refundable)
	assert.Equal(t, ReasonWithinGracePeriod, d.Reason)
}

func TestDecideCancellation_FullRefundIgnoresStartAt(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := createdAt.Add(9 * time.Minute)

	for _, startAt := range []time.Time{
		createdAt.Add(-time.Hour), // already started
		createdAt.Add(time.Minute),
		createdAt.Add(240 * time.Hour),
	} {
		d := DecideCancellation(testCancellation, createdAt, startAt, now)
		assert.True(t, d.Refundable)
		assert.Equal(t, ReasonWithinGracePeriod, d.Reason)
	}
}
