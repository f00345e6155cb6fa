// Package payments defines the boundary to the external payment processor.
// The booking engine only ever talks to the Gateway interface; the sandbox
// implementation stands in for the real processor in local and test setups.
package payments

import (
	"context"
	"fmt"
)

// Gateway is the payment processor surface the booking engine consumes.
// Authorize places a hold; Capture converts a hold (or an authorized charge)
// into an actual charge; Release cancels a hold; Refund returns captured
// funds; ChargeImmediate is a synchronous charge used for extensions and
// modification deltas.
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, payerRef string) (intentRef string, err error)
	Capture(ctx context.Context, intentRef string) error
	Release(ctx context.Context, intentRef string) error
	Refund(ctx context.Context, intentRef string, amountCents int64) error
	ChargeImmediate(ctx context.Context, amountCents int64, payerRef string) (chargeRef string, err error)
}

// AuthenticationRequiredError signals a step-up flow (e.g. 3-D Secure): the
// charge was authorized but not completed. The caller must present the
// challenge and finalize the charge by capturing AuthorizationRef.
type AuthenticationRequiredError struct {
	AuthorizationRef string
	ChallengeRef     string
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("payment requires authentication (challenge %s)", e.ChallengeRef)
}
