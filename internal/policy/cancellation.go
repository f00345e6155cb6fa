package policy

import "time"

// Refund decision reasons, surfaced verbatim to callers and stored on the
// booking when a cancellation goes through.
const (
	ReasonWithinGracePeriod = "within grace period"
	ReasonBeforeCutoff      = "more than 1 hour before start"
	ReasonAfterCutoff       = "less than 1 hour before start"
)

// CancellationConfig holds the two cancellation windows: the grace period
// after creation during which a cancellation always refunds in full, and
// the cutoff before start after which nothing is refunded.
type CancellationConfig struct {
	GracePeriod time.Duration
	StartCutoff time.Duration
}

// RefundDecision is the outcome of the cancellation policy.
type RefundDecision struct {
	Refundable bool
	Reason     string
}

// DecideCancellation maps booking creation time, start time and the current
// instant to a refund decision. The grace-period check runs first and is
// sufficient on its own: a grace-period cancellation five minutes before
// start is still fully refunded.
func DecideCancellation(cfg CancellationConfig, createdAt, startAt, now time.Time) RefundDecision {
	if !now.After(createdAt.Add(cfg.GracePeriod)) {
		return RefundDecision{Refundable: true, Reason: ReasonWithinGracePeriod}
	}
	if !now.After(startAt.Add(-cfg.StartCutoff)) {
		return RefundDecision{Refundable: true, Reason: ReasonBeforeCutoff}
	}
	return RefundDecision{Refundable: false, Reason: ReasonAfterCutoff}
}
