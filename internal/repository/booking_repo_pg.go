package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrStatusConflict is returned when a conditional write loses the race:
	// the booking's status no longer matches what the caller observed.
	ErrStatusConflict = errors.New("booking status conflict")
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByToken(ctx context.Context, token string) (*domain.Booking, error)
	// UpdateConditional applies mutate to the booking inside a transaction,
	// but only if its status still equals expected. This is the optimistic
	// write primitive every state transition goes through.
	UpdateConditional(ctx context.Context, id string, expected domain.BookingStatus, mutate func(*domain.Booking) error) (*domain.Booking, error)
	ListHeldExpiring(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
	ListActiveOverdue(ctx context.Context, now time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, spot_id, renter_id, guest_name, guest_email, guest_phone, guest_vehicle,
	access_token, start_at, end_at, approval_deadline,
	hourly_rate_cents, total_hours, subtotal_cents, platform_fee_cents, ev_charging_fee_cents,
	total_amount_cents, extension_charges_cents, original_total_amount_cents,
	status, overstay_detected_at, overstay_grace_end, overstay_action, overstay_charge_cents,
	refund_amount_cents, cancellation_reason, payment_intent_ref, payer_ref,
	created_at, updated_at`

func (r *PGBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	var guestName, guestEmail, guestPhone, guestVehicle *string
	if b.Guest != nil {
		guestName, guestEmail = &b.Guest.Name, &b.Guest.Email
		guestPhone, guestVehicle = &b.Guest.Phone, &b.Guest.Vehicle
	}

	return r.db.QueryRow(ctx, `INSERT INTO bookings (
			id, spot_id, renter_id, guest_name, guest_email, guest_phone, guest_vehicle,
			access_token, start_at, end_at, approval_deadline,
			hourly_rate_cents, total_hours, subtotal_cents, platform_fee_cents, ev_charging_fee_cents,
			total_amount_cents, extension_charges_cents, original_total_amount_cents,
			status, overstay_action, overstay_charge_cents, refund_amount_cents, cancellation_reason,
			payment_intent_ref, payer_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		RETURNING created_at, updated_at`,
		b.ID, b.SpotID, b.RenterID, guestName, guestEmail, guestPhone, guestVehicle,
		b.AccessToken, b.StartAt, b.EndAt, b.ApprovalDeadline,
		b.HourlyRateCents, b.TotalHours, b.SubtotalCents, b.PlatformFeeCents, b.EVChargingFeeCents,
		b.TotalAmountCents, b.ExtensionChargesCents, b.OriginalTotalAmountCents,
		b.Status, b.OverstayAction, b.OverstayChargeCents, b.RefundAmountCents, b.CancellationReason,
		b.PaymentIntentRef, b.PayerRef).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) GetByToken(ctx context.Context, token string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE access_token=$1`, token)
	return scanBooking(row)
}

func (r *PGBookingRepository) UpdateConditional(ctx context.Context, id string, expected domain.BookingStatus, mutate func(*domain.Booking) error) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, err
	}
	if b.Status != expected {
		return nil, ErrStatusConflict
	}

	if err := mutate(b); err != nil {
		return nil, err
	}

	var guestName, guestEmail, guestPhone, guestVehicle *string
	if b.Guest != nil {
		guestName, guestEmail = &b.Guest.Name, &b.Guest.Email
		guestPhone, guestVehicle = &b.Guest.Phone, &b.Guest.Vehicle
	}

	if err := tx.QueryRow(ctx, `UPDATE bookings SET
			start_at=$2, end_at=$3, approval_deadline=$4,
			total_hours=$5, subtotal_cents=$6, platform_fee_cents=$7, ev_charging_fee_cents=$8,
			total_amount_cents=$9, extension_charges_cents=$10,
			status=$11, overstay_detected_at=$12, overstay_grace_end=$13, overstay_action=$14,
			overstay_charge_cents=$15, refund_amount_cents=$16, cancellation_reason=$17,
			guest_name=$18, guest_email=$19, guest_phone=$20, guest_vehicle=$21,
			updated_at=now()
		WHERE id=$1
		RETURNING updated_at`,
		b.ID, b.StartAt, b.EndAt, b.ApprovalDeadline,
		b.TotalHours, b.SubtotalCents, b.PlatformFeeCents, b.EVChargingFeeCents,
		b.TotalAmountCents, b.ExtensionChargesCents,
		b.Status, b.OverstayDetectedAt, b.OverstayGraceEnd, b.OverstayAction,
		b.OverstayChargeCents, b.RefundAmountCents, b.CancellationReason,
		guestName, guestEmail, guestPhone, guestVehicle).
		Scan(&b.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) ListHeldExpiring(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND approval_deadline <= $2`, domain.BookingStatusHeld, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListActiveOverdue(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND end_at <= $2 AND overstay_detected_at IS NULL`, domain.BookingStatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var guestName, guestEmail, guestPhone, guestVehicle *string
	err := row.Scan(
		&b.ID, &b.SpotID, &b.RenterID, &guestName, &guestEmail, &guestPhone, &guestVehicle,
		&b.AccessToken, &b.StartAt, &b.EndAt, &b.ApprovalDeadline,
		&b.HourlyRateCents, &b.TotalHours, &b.SubtotalCents, &b.PlatformFeeCents, &b.EVChargingFeeCents,
		&b.TotalAmountCents, &b.ExtensionChargesCents, &b.OriginalTotalAmountCents,
		&b.Status, &b.OverstayDetectedAt, &b.OverstayGraceEnd, &b.OverstayAction, &b.OverstayChargeCents,
		&b.RefundAmountCents, &b.CancellationReason, &b.PaymentIntentRef, &b.PayerRef,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if guestName != nil {
		b.Guest = &domain.GuestInfo{Name: *guestName}
		if guestEmail != nil {
			b.Guest.Email = *guestEmail
		}
		if guestPhone != nil {
			b.Guest.Phone = *guestPhone
		}
		if guestVehicle != nil {
			b.Guest.Vehicle = *guestVehicle
		}
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
