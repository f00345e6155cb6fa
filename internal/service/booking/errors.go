package booking

import "errors"

// Failure taxonomy of the booking state machine. Policy functions never
// fail; everything here originates at a transition check or at the
// store/gateway boundary.
var (
	ErrInvalidWindow              = errors.New("end time must be after start time")
	ErrIllegalTransition          = errors.New("operation is not valid for the current booking status")
	ErrNotCancelable              = errors.New("booking can no longer be canceled")
	ErrInvalidExtension           = errors.New("extension duration is out of range")
	ErrPaymentAuthorizationFailed = errors.New("payment authorization failed")
	ErrPaymentCaptureFailed       = errors.New("payment capture failed")
	ErrApprovalWindowExpired      = errors.New("approval window has expired")
	ErrConflict                   = errors.New("booking was modified concurrently")
	ErrNoPendingExtension         = errors.New("no matching pending extension")
	ErrOperationInProgress        = errors.New("another operation on this booking is in progress")
)
