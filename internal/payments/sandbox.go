package payments

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

type intentState string

const (
	intentAuthorized intentState = "AUTHORIZED"
	intentCaptured   intentState = "CAPTURED"
	intentReleased   intentState = "RELEASED"
)

type intent struct {
	amountCents   int64
	payerRef      string
	state         intentState
	refundedCents int64
}

// SandboxGateway is an in-memory Gateway for local development and tests.
// It enforces the same lifecycle a real processor would: capture and release
// only apply to an open hold, refunds cannot exceed the captured amount.
type SandboxGateway struct {
	mu      sync.Mutex
	intents map[string]*intent

	// StepUpAboveCents, when > 0, makes ChargeImmediate demand
	// authentication for amounts above the threshold.
	StepUpAboveCents int64
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{intents: make(map[string]*intent)}
}

func (g *SandboxGateway) Authorize(_ context.Context, amountCents int64, payerRef string) (string, error) {
	if amountCents <= 0 {
		return "", errors.New("authorization amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ref := "pi_" + uuid.NewString()
	g.intents[ref] = &intent{amountCents: amountCents, payerRef: payerRef, state: intentAuthorized}
	log.Printf("sandbox gateway: authorized %d cents for %s (%s)", amountCents, payerRef, ref)
	return ref, nil
}

func (g *SandboxGateway) Capture(_ context.Context, intentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[intentRef]
	if !ok {
		return errors.New("unknown payment intent")
	}
	if in.state != intentAuthorized {
		return errors.New("payment intent is not capturable")
	}
	in.state = intentCaptured
	log.Printf("sandbox gateway: captured %s", intentRef)
	return nil
}

func (g *SandboxGateway) Release(_ context.Context, intentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[intentRef]
	if !ok {
		return errors.New("unknown payment intent")
	}
	if in.state == intentReleased {
		return nil
	}
	if in.state != intentAuthorized {
		return errors.New("payment intent is not releasable")
	}
	in.state = intentReleased
	log.Printf("sandbox gateway: released %s", intentRef)
	return nil
}

func (g *SandboxGateway) Refund(_ context.Context, intentRef string, amountCents int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[intentRef]
	if !ok {
		return errors.New("unknown payment intent")
	}
	if in.state != intentCaptured {
		return errors.New("payment intent is not refundable")
	}
	if amountCents <= 0 || in.refundedCents+amountCents > in.amountCents {
		return errors.New("invalid refund amount")
	}
	in.refundedCents += amountCents
	log.Printf("sandbox gateway: refunded %d cents on %s", amountCents, intentRef)
	return nil
}

func (g *SandboxGateway) ChargeImmediate(_ context.Context, amountCents int64, payerRef string) (string, error) {
	if amountCents <= 0 {
		return "", errors.New("charge amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.StepUpAboveCents > 0 && amountCents > g.StepUpAboveCents {
		ref := "pi_" + uuid.NewString()
		g.intents[ref] = &intent{amountCents: amountCents, payerRef: payerRef, state: intentAuthorized}
		return "", &AuthenticationRequiredError{
			AuthorizationRef: ref,
			ChallengeRef:     "ch_" + uuid.NewString(),
		}
	}

	ref := "pi_" + uuid.NewString()
	g.intents[ref] = &intent{amountCents: amountCents, payerRef: payerRef, state: intentCaptured}
	log.Printf("sandbox gateway: charged %d cents for %s (%s)", amountCents, payerRef, ref)
	return ref, nil
}

var _ Gateway = (*SandboxGateway)(nil)
