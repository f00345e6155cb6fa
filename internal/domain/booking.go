package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusHeld      BookingStatus = "HELD"
	BookingStatusActive    BookingStatus = "ACTIVE"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCanceled  BookingStatus = "CANCELED"
	BookingStatusDeclined  BookingStatus = "DECLINED"
)

type OverstayAction string

const (
	OverstayActionNone     OverstayAction = ""
	OverstayActionCharging OverstayAction = "CHARGING"
	OverstayActionTowing   OverstayAction = "TOWING"
)

// Cancellation reasons written by the state machine.
const (
	ReasonDeclinedByHost    = "declined_by_host"
	ReasonExpiredNoResponse = "expired_no_response"
)

// GuestInfo identifies an unauthenticated payer. A booking has either a
// RenterID or a GuestInfo, never both.
type GuestInfo struct {
	Name    string
	Email   string
	Phone   string
	Vehicle string
}

// Booking is the single aggregate of the lifecycle engine. All money fields
// are cents. Commercial terms are snapshotted at creation; TotalAmountCents
// grows with extensions and overstay charges and never drops below
// OriginalTotalAmountCents.
type Booking struct {
	ID          string
	SpotID      string
	RenterID    *string
	Guest       *GuestInfo
	AccessToken string

	StartAt          time.Time
	EndAt            time.Time
	ApprovalDeadline *time.Time

	HourlyRateCents          int64
	TotalHours               float64
	SubtotalCents            int64
	PlatformFeeCents         int64
	EVChargingFeeCents       int64
	TotalAmountCents         int64
	ExtensionChargesCents    int64
	OriginalTotalAmountCents int64

	Status BookingStatus

	OverstayDetectedAt  *time.Time
	OverstayGraceEnd    *time.Time
	OverstayAction      OverstayAction
	OverstayChargeCents int64

	RefundAmountCents  int64
	CancellationReason string

	PaymentIntentRef string
	PayerRef         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingExtension is the persisted half of the two-step extension flow:
// the gateway demanded authentication, so the charge was only authorized.
// The booking stays untouched until the charge is finalized.
type PendingExtension struct {
	BookingID        string    `json:"booking_id"`
	AuthorizationRef string    `json:"authorization_ref"`
	ChallengeRef     string    `json:"challenge_ref"`
	PrevEndAt        time.Time `json:"prev_end_at"`
	NewEndAt         time.Time `json:"new_end_at"`
	CostCents        int64     `json:"cost_cents"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsTerminal reports whether no further transitions are legal.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCompleted ||
		b.Status == BookingStatusCanceled ||
		b.Status == BookingStatusDeclined
}

// CanBeCanceled reports whether Cancel is legal at the given instant.
func (b *Booking) CanBeCanceled(now time.Time) bool {
	if b.Status != BookingStatusHeld && b.Status != BookingStatusActive {
		return false
	}
	return now.Before(b.EndAt)
}

// ApprovalExpired reports whether the approval window has elapsed.
// Always false for bookings that never required approval.
func (b *Booking) ApprovalExpired(now time.Time) bool {
	return b.ApprovalDeadline != nil && now.After(*b.ApprovalDeadline)
}

// OverstayDetected reports whether an overstay episode is open.
func (b *Booking) OverstayDetected() bool {
	return b.OverstayDetectedAt != nil
}

// IsGuest reports whether the booking was made through the guest path.
func (b *Booking) IsGuest() bool {
	return b.Guest != nil
}
