package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/config"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/domain"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/kafka"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/payments"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/policy"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/repository"
	"github.com/google/uuid"
)

// BookingUseCase is the full lifecycle surface exposed to transports and
// the worker. Every operation loads the booking, consults a policy, performs
// the gateway effect and persists the transition through a conditional write.
type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	GetBookingByToken(ctx context.Context, token string) (*domain.Booking, error)
	ApproveBooking(ctx context.Context, id string) (*domain.Booking, error)
	DeclineBooking(ctx context.Context, id string) (*domain.Booking, error)
	ExpireBooking(ctx context.Context, id string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id, actor string) (*CancelResult, error)
	ExtendBooking(ctx context.Context, id string, newEndAt time.Time) (*ExtendResult, error)
	FinalizeExtension(ctx context.Context, id, authorizationRef string) (*ExtendResult, error)
	ModifyBooking(ctx context.Context, id string, newStartAt, newEndAt time.Time) (*ModifyResult, error)
	ConfirmDeparture(ctx context.Context, id string) (*domain.Booking, error)
	DetectOverstay(ctx context.Context, id string) (*domain.Booking, error)
	SetOverstayAction(ctx context.Context, id string, action domain.OverstayAction) (*domain.Booking, error)
	CancelTowRequest(ctx context.Context, id string) (*domain.Booking, error)
	ExpireHeldBookings(ctx context.Context) ([]domain.Booking, error)
	DetectOverdueBookings(ctx context.Context) ([]domain.Booking, error)
}

type Cache interface {
	AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	ReleaseBookingLock(ctx context.Context, bookingID string) error
	SetPendingExtension(ctx context.Context, ext domain.PendingExtension) error
	GetPendingExtension(ctx context.Context, bookingID string) (*domain.PendingExtension, error)
	DeletePendingExtension(ctx context.Context, bookingID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Settings carries the policy constants of the lifecycle engine.
type Settings struct {
	Pricing           policy.PricingConfig
	Cancellation      policy.CancellationConfig
	ApprovalWindow    time.Duration
	OverstayGrace     time.Duration
	MinExtensionHours float64
	MaxExtensionHours float64
	OperationLockTTL  time.Duration
}

func SettingsFromConfig(cfg config.BookingConfig) Settings {
	return Settings{
		Pricing: policy.PricingConfig{
			DriverMarkupPercent: cfg.DriverMarkupPercent,
			ServiceFeePercent:   cfg.ServiceFeePercent,
			OverstayRateCents:   cfg.OverstayRateCentsPerHour,
		},
		Cancellation: policy.CancellationConfig{
			GracePeriod: time.Duration(cfg.CancellationGraceMinutes) * time.Minute,
			StartCutoff: time.Duration(cfg.FreeCancellationCutoffMin) * time.Minute,
		},
		ApprovalWindow:    time.Duration(cfg.ApprovalWindowMinutes) * time.Minute,
		OverstayGrace:     time.Duration(cfg.OverstayGraceMinutes) * time.Minute,
		MinExtensionHours: cfg.MinExtensionHours,
		MaxExtensionHours: cfg.MaxExtensionHours,
		OperationLockTTL:  time.Duration(cfg.OperationLockSeconds) * time.Second,
	}
}

type CreateBookingInput struct {
	SpotID                 string
	RenterID               string
	Guest                  *domain.GuestInfo
	StartAt                time.Time
	EndAt                  time.Time
	HourlyRateCents        int64
	EVChargingPerHourCents int64
	InstantBook            bool
	PayerRef               string
}

type CancelResult struct {
	Booking           *domain.Booking
	RefundAmountCents int64
	Reason            string
}

type ExtendResult struct {
	Booking                *domain.Booking
	ChargedCents           int64
	RequiresAuthentication bool
	ChallengeRef           string
	AuthorizationRef       string
}

type ModifyResult struct {
	Booking    *domain.Booking
	DeltaCents int64
}

type BookingService struct {
	bookings           repository.BookingRepository
	gateway            payments.Gateway
	cache              Cache
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	settings           Settings
	now                func() time.Time
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

// WithClock replaces the wall clock; tests use it to simulate deadlines.
func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	gateway payments.Gateway,
	cache Cache,
	producer Producer,
	bookingTopic string,
	settings Settings,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		gateway:      gateway,
		cache:        cache,
		producer:     producer,
		bookingTopic: bookingTopic,
		settings:     settings,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if !input.EndAt.After(input.StartAt) {
		return nil, ErrInvalidWindow
	}
	if input.HourlyRateCents <= 0 {
		return nil, errors.New("hourly rate must be positive")
	}
	if (input.RenterID == "") == (input.Guest == nil) {
		return nil, errors.New("exactly one of renter or guest identity is required")
	}

	now := s.now()
	hours := input.EndAt.Sub(input.StartAt).Hours()
	quote := policy.BasePricing(s.settings.Pricing, input.HourlyRateCents, hours)
	evFee := policy.EVChargingFeeCents(input.EVChargingPerHourCents, hours)
	total := quote.TotalCents + evFee

	b := &domain.Booking{
		ID:                       uuid.NewString(),
		SpotID:                   input.SpotID,
		Guest:                    input.Guest,
		AccessToken:              uuid.NewString(),
		StartAt:                  input.StartAt,
		EndAt:                    input.EndAt,
		HourlyRateCents:          input.HourlyRateCents,
		TotalHours:               hours,
		SubtotalCents:            quote.SubtotalCents,
		PlatformFeeCents:         quote.ServiceFeeCents,
		EVChargingFeeCents:       evFee,
		TotalAmountCents:         total,
		OriginalTotalAmountCents: total,
		PayerRef:                 input.PayerRef,
	}
	if input.RenterID != "" {
		b.RenterID = &input.RenterID
	}

	intentRef, err := s.gateway.Authorize(ctx, total, input.PayerRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentAuthorizationFailed, err)
	}
	b.PaymentIntentRef = intentRef

	if input.InstantBook {
		if err := s.gateway.Capture(ctx, intentRef); err != nil {
			_ = s.gateway.Release(ctx, intentRef)
			return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
		}
		b.Status = domain.BookingStatusActive
	} else {
		b.Status = domain.BookingStatusHeld
		deadline := now.Add(s.settings.ApprovalWindow)
		b.ApprovalDeadline = &deadline
	}

	if err := s.bookings.Create(ctx, b); err != nil {
		_ = s.gateway.Release(ctx, intentRef)
		return nil, err
	}

	s.publish(ctx, "booking_created", b)
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withDerivedAccrual(b), nil
}

func (s *BookingService) GetBookingByToken(ctx context.Context, token string) (*domain.Booking, error) {
	b, err := s.bookings.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.withDerivedAccrual(b), nil
}

func (s *BookingService) ApproveBooking(ctx context.Context, id string) (*domain.Booking, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusHeld {
		return nil, ErrIllegalTransition
	}
	if current.ApprovalExpired(s.now()) {
		return nil, ErrApprovalWindowExpired
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusHeld, func(b *domain.Booking) error {
		b.Status = domain.BookingStatusActive
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if err := s.gateway.Capture(ctx, updated.PaymentIntentRef); err != nil {
		// undo the transition so the booking can still be declined or expire
		if _, revertErr := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusActive, func(b *domain.Booking) error {
			b.Status = domain.BookingStatusHeld
			return nil
		}); revertErr != nil {
			log.Printf("WARN: failed to revert approval of booking %s after capture failure: %v", id, revertErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
	}

	s.publish(ctx, "booking_approved", updated)
	return updated, nil
}

func (s *BookingService) DeclineBooking(ctx context.Context, id string) (*domain.Booking, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusHeld {
		return nil, ErrIllegalTransition
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusHeld, func(b *domain.Booking) error {
		b.Status = domain.BookingStatusDeclined
		b.CancellationReason = domain.ReasonDeclinedByHost
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if err := s.gateway.Release(ctx, updated.PaymentIntentRef); err != nil {
		return updated, fmt.Errorf("release authorization: %w", err)
	}

	s.publish(ctx, "booking_declined", updated)
	return updated, nil
}

// ExpireBooking is safe to call any number of times concurrently. Only the
// caller whose conditional write wins releases the authorization; everyone
// else observes the terminal status and returns it without error.
func (s *BookingService) ExpireBooking(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusHeld {
		return current, nil
	}
	if !current.ApprovalExpired(s.now()) {
		return nil, ErrIllegalTransition
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusHeld, func(b *domain.Booking) error {
		b.Status = domain.BookingStatusCanceled
		b.CancellationReason = domain.ReasonExpiredNoResponse
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// lost the race with Approve/Decline/another Expire
			return s.bookings.GetByID(ctx, id)
		}
		return nil, err
	}

	if err := s.gateway.Release(ctx, updated.PaymentIntentRef); err != nil {
		return updated, fmt.Errorf("release authorization: %w", err)
	}

	s.publish(ctx, "booking_expired", updated)
	return updated, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, id, actor string) (*CancelResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !current.CanBeCanceled(now) {
		return nil, ErrNotCancelable
	}

	decision := policy.DecideCancellation(s.settings.Cancellation, current.CreatedAt, current.StartAt, now)
	var refund int64
	if decision.Refundable {
		refund = current.TotalAmountCents
	}

	// money moves first: a gateway failure leaves the booking untouched
	if current.Status == domain.BookingStatusHeld {
		if err := s.gateway.Release(ctx, current.PaymentIntentRef); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
		}
	} else if refund > 0 {
		if err := s.gateway.Refund(ctx, current.PaymentIntentRef, refund); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
		}
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, current.Status, func(b *domain.Booking) error {
		b.Status = domain.BookingStatusCanceled
		b.RefundAmountCents = refund
		b.CancellationReason = decision.Reason
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.publishWith(ctx, "booking_canceled", updated, func(e *kafka.BookingEvent) {
		e.RefundAmountCents = refund
		e.Reason = fmt.Sprintf("%s (by %s)", decision.Reason, actor)
	})
	return &CancelResult{Booking: updated, RefundAmountCents: refund, Reason: decision.Reason}, nil
}

func (s *BookingService) ExtendBooking(ctx context.Context, id string, newEndAt time.Time) (*ExtendResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusActive {
		return nil, ErrIllegalTransition
	}
	now := s.now()
	if !now.Before(current.EndAt) {
		return nil, ErrIllegalTransition
	}

	hours := newEndAt.Sub(current.EndAt).Hours()
	if hours < s.settings.MinExtensionHours || hours > s.settings.MaxExtensionHours {
		return nil, ErrInvalidExtension
	}

	cost := policy.ExtensionCost(s.settings.Pricing, current.HourlyRateCents, hours)

	if _, err := s.gateway.ChargeImmediate(ctx, cost.TotalCents, current.PayerRef); err != nil {
		var stepUp *payments.AuthenticationRequiredError
		if errors.As(err, &stepUp) {
			pending := domain.PendingExtension{
				BookingID:        id,
				AuthorizationRef: stepUp.AuthorizationRef,
				ChallengeRef:     stepUp.ChallengeRef,
				PrevEndAt:        current.EndAt,
				NewEndAt:         newEndAt,
				CostCents:        cost.TotalCents,
				CreatedAt:        now,
			}
			if s.cache != nil {
				if err := s.cache.SetPendingExtension(ctx, pending); err != nil {
					return nil, err
				}
			}
			return &ExtendResult{
				Booking:                current,
				RequiresAuthentication: true,
				ChallengeRef:           stepUp.ChallengeRef,
				AuthorizationRef:       stepUp.AuthorizationRef,
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
	}

	updated, err := s.applyExtension(ctx, id, current.EndAt, newEndAt, cost.TotalCents)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "booking_extended", updated)
	return &ExtendResult{Booking: updated, ChargedCents: cost.TotalCents}, nil
}

// FinalizeExtension completes the step-up flow. A finalize without a
// matching prior authorize fails; the booking is untouched until the
// captured charge and the conditional write both succeed.
func (s *BookingService) FinalizeExtension(ctx context.Context, id, authorizationRef string) (*ExtendResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s.cache == nil {
		return nil, ErrNoPendingExtension
	}
	pending, err := s.cache.GetPendingExtension(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.AuthorizationRef != authorizationRef {
		return nil, ErrNoPendingExtension
	}

	if err := s.gateway.Capture(ctx, authorizationRef); err != nil {
		// pending record is kept so the caller may retry after re-authenticating
		return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
	}

	updated, err := s.applyExtension(ctx, id, pending.PrevEndAt, pending.NewEndAt, pending.CostCents)
	if err != nil {
		return nil, err
	}
	_ = s.cache.DeletePendingExtension(ctx, id)

	s.publish(ctx, "booking_extended", updated)
	return &ExtendResult{Booking: updated, ChargedCents: pending.CostCents}, nil
}

func (s *BookingService) applyExtension(ctx context.Context, id string, prevEndAt, newEndAt time.Time, costCents int64) (*domain.Booking, error) {
	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusActive, func(b *domain.Booking) error {
		if !b.EndAt.Equal(prevEndAt) {
			return ErrConflict
		}
		b.EndAt = newEndAt
		b.TotalHours = b.EndAt.Sub(b.StartAt).Hours()
		b.ExtensionChargesCents += costCents
		b.TotalAmountCents += costCents
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return updated, nil
}

func (s *BookingService) ModifyBooking(ctx context.Context, id string, newStartAt, newEndAt time.Time) (*ModifyResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusHeld && current.Status != domain.BookingStatusActive {
		return nil, ErrIllegalTransition
	}
	if !s.now().Before(current.StartAt) {
		return nil, ErrIllegalTransition
	}
	if !newEndAt.After(newStartAt) {
		return nil, ErrInvalidWindow
	}

	newHours := newEndAt.Sub(newStartAt).Hours()
	quote := policy.BasePricing(s.settings.Pricing, current.HourlyRateCents, newHours)
	delta := policy.ModificationDelta(s.settings.Pricing, current.HourlyRateCents, newHours,
		current.SubtotalCents+current.PlatformFeeCents)

	if delta > 0 {
		if _, err := s.gateway.ChargeImmediate(ctx, delta, current.PayerRef); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
		}
	} else if delta < 0 {
		if err := s.gateway.Refund(ctx, current.PaymentIntentRef, -delta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
		}
	}

	prevStartAt, prevEndAt := current.StartAt, current.EndAt
	updated, err := s.bookings.UpdateConditional(ctx, id, current.Status, func(b *domain.Booking) error {
		if !b.StartAt.Equal(prevStartAt) || !b.EndAt.Equal(prevEndAt) {
			return ErrConflict
		}
		b.StartAt = newStartAt
		b.EndAt = newEndAt
		b.TotalHours = newHours
		b.SubtotalCents = quote.SubtotalCents
		b.PlatformFeeCents = quote.ServiceFeeCents
		b.TotalAmountCents = quote.TotalCents + b.EVChargingFeeCents + b.ExtensionChargesCents
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.publish(ctx, "booking_modified", updated)
	return &ModifyResult{Booking: updated, DeltaCents: delta}, nil
}

func (s *BookingService) ConfirmDeparture(ctx context.Context, id string) (*domain.Booking, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusActive {
		return nil, ErrIllegalTransition
	}

	// settle any accrual before completing; the charge is kept, the
	// overstay sub-state is cleared
	var finalCharge int64
	if current.OverstayAction == domain.OverstayActionCharging && current.OverstayGraceEnd != nil {
		finalCharge = policy.OverstayAccrualCents(s.settings.Pricing, *current.OverstayGraceEnd, s.now())
		if finalCharge > 0 {
			if _, err := s.gateway.ChargeImmediate(ctx, finalCharge, current.PayerRef); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPaymentCaptureFailed, err)
			}
		}
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusActive, func(b *domain.Booking) error {
		b.Status = domain.BookingStatusCompleted
		b.OverstayDetectedAt = nil
		b.OverstayGraceEnd = nil
		b.OverstayAction = domain.OverstayActionNone
		b.OverstayChargeCents = finalCharge
		b.TotalAmountCents += finalCharge
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.publish(ctx, "booking_completed", updated)
	return updated, nil
}

// DetectOverstay opens an overstay episode once the booking is past its end
// with no departure confirmed. Invoking it again is a no-op.
func (s *BookingService) DetectOverstay(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusActive {
		return nil, ErrIllegalTransition
	}
	now := s.now()
	if policy.OverstayPhaseAt(current.EndAt, time.Time{}, now) == policy.OverstayNone {
		return nil, ErrIllegalTransition
	}
	if current.OverstayDetected() {
		return current, nil
	}

	graceEnd := now.Add(s.settings.OverstayGrace)
	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusActive, func(b *domain.Booking) error {
		if b.OverstayDetectedAt != nil {
			return nil
		}
		detected := now
		b.OverstayDetectedAt = &detected
		b.OverstayGraceEnd = &graceEnd
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.publish(ctx, "overstay_detected", updated)
	return updated, nil
}

func (s *BookingService) SetOverstayAction(ctx context.Context, id string, action domain.OverstayAction) (*domain.Booking, error) {
	if action != domain.OverstayActionCharging && action != domain.OverstayActionTowing {
		return nil, ErrIllegalTransition
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusActive || current.OverstayGraceEnd == nil {
		return nil, ErrIllegalTransition
	}
	if s.now().Before(*current.OverstayGraceEnd) {
		return nil, ErrIllegalTransition
	}
	if current.OverstayAction != domain.OverstayActionNone {
		return nil, ErrIllegalTransition
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusActive, func(b *domain.Booking) error {
		if b.OverstayAction != domain.OverstayActionNone {
			return ErrConflict
		}
		b.OverstayAction = action
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if action == domain.OverstayActionTowing {
		// the tow dispatch itself is an external collaborator's job
		s.publish(ctx, "tow_requested", updated)
	} else {
		s.publish(ctx, "overstay_charging_started", updated)
	}
	return s.withDerivedAccrual(updated), nil
}

func (s *BookingService) CancelTowRequest(ctx context.Context, id string) (*domain.Booking, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusActive || current.OverstayAction != domain.OverstayActionTowing {
		return nil, ErrIllegalTransition
	}

	updated, err := s.bookings.UpdateConditional(ctx, id, domain.BookingStatusActive, func(b *domain.Booking) error {
		b.OverstayAction = domain.OverstayActionNone
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	s.publish(ctx, "tow_request_canceled", updated)
	return updated, nil
}

// ExpireHeldBookings is the worker sweep: every held booking past its
// approval deadline is pushed through ExpireBooking.
func (s *BookingService) ExpireHeldBookings(ctx context.Context) ([]domain.Booking, error) {
	candidates, err := s.bookings.ListHeldExpiring(ctx, s.now())
	if err != nil {
		return nil, err
	}

	var expired []domain.Booking
	for _, c := range candidates {
		b, err := s.ExpireBooking(ctx, c.ID)
		if err != nil {
			log.Printf("WARN: failed to expire booking %s: %v", c.ID, err)
			continue
		}
		if b.Status == domain.BookingStatusCanceled {
			expired = append(expired, *b)
		}
	}
	return expired, nil
}

// DetectOverdueBookings is the overstay monitor sweep: every active booking
// past its end with no open episode gets DetectOverstay applied.
func (s *BookingService) DetectOverdueBookings(ctx context.Context) ([]domain.Booking, error) {
	candidates, err := s.bookings.ListActiveOverdue(ctx, s.now())
	if err != nil {
		return nil, err
	}

	var detected []domain.Booking
	for _, c := range candidates {
		b, err := s.DetectOverstay(ctx, c.ID)
		if err != nil {
			log.Printf("WARN: failed to flag overstay on booking %s: %v", c.ID, err)
			continue
		}
		detected = append(detected, *b)
	}
	return detected, nil
}

// withDerivedAccrual overlays the on-demand overstay accrual on a read.
// The stored counter is only settled at departure; reads always derive.
func (s *BookingService) withDerivedAccrual(b *domain.Booking) *domain.Booking {
	if b.Status == domain.BookingStatusActive &&
		b.OverstayAction == domain.OverstayActionCharging &&
		b.OverstayGraceEnd != nil {
		accrued := policy.OverstayAccrualCents(s.settings.Pricing, *b.OverstayGraceEnd, s.now())
		if accrued > b.OverstayChargeCents {
			b.OverstayChargeCents = accrued
		}
	}
	return b
}

func (s *BookingService) lock(ctx context.Context, id string) (func(), error) {
	if s.cache == nil {
		return func() {}, nil
	}
	ok, err := s.cache.AcquireBookingLock(ctx, id, s.settings.OperationLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOperationInProgress
	}
	return func() {
		_ = s.cache.ReleaseBookingLock(ctx, id)
	}, nil
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	s.publishWith(ctx, eventType, b, nil)
}

func (s *BookingService) publishWith(ctx context.Context, eventType string, b *domain.Booking, decorate func(*kafka.BookingEvent)) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:             eventType,
		BookingID:        b.ID,
		SpotID:           b.SpotID,
		Status:           string(b.Status),
		StartAt:          b.StartAt,
		EndAt:            b.EndAt,
		TotalAmountCents: b.TotalAmountCents,
	}
	if b.Guest != nil {
		event.Email = b.Guest.Email
	}
	if decorate != nil {
		decorate(&event)
	}

	if err := s.producer.Publish(ctx, s.bookingTopic, b.ID, event); err != nil {
		log.Printf("WARNING: failed to publish %s event for booking %s: %v", eventType, b.ID, err)
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, b.ID, event); err != nil {
			log.Printf("WARNING: failed to publish %s notification for booking %s: %v", eventType, b.ID, err)
		}
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return ErrConflict
	}
	return err
}

var _ BookingUseCase = (*BookingService)(nil)
