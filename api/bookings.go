package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/internal/domain"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/repository"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type guestRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Vehicle string `json:"vehicle"`
}

type createBookingRequest struct {
	SpotID                 string        `json:"spot_id"`
	RenterID               string        `json:"renter_id"`
	Guest                  *guestRequest `json:"guest"`
	StartAt                time.Time     `json:"start_at"`
	EndAt                  time.Time     `json:"end_at"`
	HourlyRateCents        int64         `json:"hourly_rate_cents"`
	EVChargingPerHourCents int64         `json:"ev_charging_per_hour_cents"`
	InstantBook            bool          `json:"instant_book"`
	PayerRef               string        `json:"payer_ref"`
}

type extendBookingRequest struct {
	NewEndAt time.Time `json:"new_end_at"`
}

type finalizeExtensionRequest struct {
	AuthorizationRef string `json:"authorization_ref"`
}

type modifyBookingRequest struct {
	NewStartAt time.Time `json:"new_start_at"`
	NewEndAt   time.Time `json:"new_end_at"`
}

type overstayActionRequest struct {
	Action string `json:"action"`
}

type bookingResponse struct {
	ID                       string  `json:"id"`
	SpotID                   string  `json:"spot_id"`
	RenterID                 string  `json:"renter_id,omitempty"`
	GuestEmail               string  `json:"guest_email,omitempty"`
	AccessToken              string  `json:"access_token,omitempty"`
	Status                   string  `json:"status"`
	StartAt                  string  `json:"start_at"`
	EndAt                    string  `json:"end_at"`
	ApprovalDeadline         string  `json:"approval_deadline,omitempty"`
	HourlyRateCents          int64   `json:"hourly_rate_cents"`
	TotalHours               float64 `json:"total_hours"`
	SubtotalCents            int64   `json:"subtotal_cents"`
	PlatformFeeCents         int64   `json:"platform_fee_cents"`
	EVChargingFeeCents       int64   `json:"ev_charging_fee_cents,omitempty"`
	ExtensionChargesCents    int64   `json:"extension_charges_cents,omitempty"`
	OverstayChargeCents      int64   `json:"overstay_charge_cents,omitempty"`
	TotalAmountCents         int64   `json:"total_amount_cents"`
	OriginalTotalAmountCents int64   `json:"original_total_amount_cents"`
	RefundAmountCents        int64   `json:"refund_amount_cents,omitempty"`
	CancellationReason       string  `json:"cancellation_reason,omitempty"`
	OverstayDetectedAt       string  `json:"overstay_detected_at,omitempty"`
	OverstayGraceEnd         string  `json:"overstay_grace_end,omitempty"`
	OverstayAction           string  `json:"overstay_action,omitempty"`
}

type cancelResponse struct {
	Booking           bookingResponse `json:"booking"`
	RefundAmountCents int64           `json:"refund_amount_cents"`
	Reason            string          `json:"reason"`
}

type extendResponse struct {
	Booking                bookingResponse `json:"booking"`
	ChargedCents           int64           `json:"charged_cents"`
	RequiresAuthentication bool            `json:"requires_authentication"`
	ChallengeRef           string          `json:"challenge_ref,omitempty"`
	AuthorizationRef       string          `json:"authorization_ref,omitempty"`
}

type modifyResponse struct {
	Booking    bookingResponse `json:"booking"`
	DeltaCents int64           `json:"delta_cents"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/approve", h.approve)
	router.POST("/:id/decline", h.decline)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/extend", h.extend)
	router.POST("/:id/extend/finalize", h.finalizeExtension)
	router.POST("/:id/modify", h.modify)
	router.POST("/:id/depart", h.depart)
	router.POST("/:id/overstay/detect", h.detectOverstay)
	router.POST("/:id/overstay/action", h.setOverstayAction)
	router.POST("/:id/overstay/tow/cancel", h.cancelTow)
}

// RegisterGuest mounts the token-scoped routes. A guest proves access with
// the booking's opaque token instead of an authenticated identity; beyond
// resolving the token the operations are identical.
func (h *BookingHandler) RegisterGuest(router *gin.RouterGroup) {
	router.GET("/:token", h.guestGet)
	router.POST("/:token/cancel", h.guestCancel)
	router.POST("/:token/extend", h.guestExtend)
	router.POST("/:token/extend/finalize", h.guestFinalizeExtension)
	router.POST("/:token/depart", h.guestDepart)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := booking.CreateBookingInput{
		SpotID:                 req.SpotID,
		RenterID:               req.RenterID,
		StartAt:                req.StartAt,
		EndAt:                  req.EndAt,
		HourlyRateCents:        req.HourlyRateCents,
		EVChargingPerHourCents: req.EVChargingPerHourCents,
		InstantBook:            req.InstantBook,
		PayerRef:               req.PayerRef,
	}
	if req.Guest != nil {
		input.Guest = &domain.GuestInfo{
			Name:    req.Guest.Name,
			Email:   req.Guest.Email,
			Phone:   req.Guest.Phone,
			Vehicle: req.Guest.Vehicle,
		}
	}

	b, err := h.service.CreateBooking(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) approve(c *gin.Context) {
	b, err := h.service.ApproveBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) decline(c *gin.Context) {
	b, err := h.service.DeclineBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	h.cancelByID(c, c.Param("id"), "renter")
}

func (h *BookingHandler) cancelByID(c *gin.Context, id, actor string) {
	result, err := h.service.CancelBooking(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelResponse{
		Booking:           toBookingResponse(result.Booking),
		RefundAmountCents: result.RefundAmountCents,
		Reason:            result.Reason,
	})
}

func (h *BookingHandler) extend(c *gin.Context) {
	h.extendByID(c, c.Param("id"))
}

func (h *BookingHandler) extendByID(c *gin.Context, id string) {
	var req extendBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ExtendBooking(c.Request.Context(), id, req.NewEndAt)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if result.RequiresAuthentication {
		// the charge needs a completed challenge before it applies
		status = http.StatusAccepted
	}
	c.JSON(status, extendResponse{
		Booking:                toBookingResponse(result.Booking),
		ChargedCents:           result.ChargedCents,
		RequiresAuthentication: result.RequiresAuthentication,
		ChallengeRef:           result.ChallengeRef,
		AuthorizationRef:       result.AuthorizationRef,
	})
}

func (h *BookingHandler) finalizeExtension(c *gin.Context) {
	h.finalizeExtensionByID(c, c.Param("id"))
}

func (h *BookingHandler) finalizeExtensionByID(c *gin.Context, id string) {
	var req finalizeExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.FinalizeExtension(c.Request.Context(), id, req.AuthorizationRef)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, extendResponse{
		Booking:      toBookingResponse(result.Booking),
		ChargedCents: result.ChargedCents,
	})
}

func (h *BookingHandler) modify(c *gin.Context) {
	var req modifyBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ModifyBooking(c.Request.Context(), c.Param("id"), req.NewStartAt, req.NewEndAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, modifyResponse{
		Booking:    toBookingResponse(result.Booking),
		DeltaCents: result.DeltaCents,
	})
}

func (h *BookingHandler) depart(c *gin.Context) {
	h.departByID(c, c.Param("id"))
}

func (h *BookingHandler) departByID(c *gin.Context, id string) {
	b, err := h.service.ConfirmDeparture(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) detectOverstay(c *gin.Context) {
	b, err := h.service.DetectOverstay(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) setOverstayAction(c *gin.Context) {
	var req overstayActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.SetOverstayAction(c.Request.Context(), c.Param("id"), domain.OverstayAction(req.Action))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) cancelTow(c *gin.Context) {
	b, err := h.service.CancelTowRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) guestGet(c *gin.Context) {
	b, err := h.service.GetBookingByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) guestCancel(c *gin.Context) {
	b, err := h.service.GetBookingByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.cancelByID(c, b.ID, "guest")
}

func (h *BookingHandler) guestExtend(c *gin.Context) {
	b, err := h.service.GetBookingByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.extendByID(c, b.ID)
}

func (h *BookingHandler) guestFinalizeExtension(c *gin.Context) {
	b, err := h.service.GetBookingByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.finalizeExtensionByID(c, b.ID)
}

func (h *BookingHandler) guestDepart(c *gin.Context) {
	b, err := h.service.GetBookingByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.departByID(c, b.ID)
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:                       b.ID,
		SpotID:                   b.SpotID,
		AccessToken:              b.AccessToken,
		Status:                   string(b.Status),
		StartAt:                  b.StartAt.Format(time.RFC3339),
		EndAt:                    b.EndAt.Format(time.RFC3339),
		HourlyRateCents:          b.HourlyRateCents,
		TotalHours:               b.TotalHours,
		SubtotalCents:            b.SubtotalCents,
		PlatformFeeCents:         b.PlatformFeeCents,
		EVChargingFeeCents:       b.EVChargingFeeCents,
		ExtensionChargesCents:    b.ExtensionChargesCents,
		OverstayChargeCents:      b.OverstayChargeCents,
		TotalAmountCents:         b.TotalAmountCents,
		OriginalTotalAmountCents: b.OriginalTotalAmountCents,
		RefundAmountCents:        b.RefundAmountCents,
		CancellationReason:       b.CancellationReason,
		OverstayAction:           string(b.OverstayAction),
	}
	if b.RenterID != nil {
		resp.RenterID = *b.RenterID
	}
	if b.Guest != nil {
		resp.GuestEmail = b.Guest.Email
	}
	if b.ApprovalDeadline != nil {
		resp.ApprovalDeadline = b.ApprovalDeadline.Format(time.RFC3339)
	}
	if b.OverstayDetectedAt != nil {
		resp.OverstayDetectedAt = b.OverstayDetectedAt.Format(time.RFC3339)
	}
	if b.OverstayGraceEnd != nil {
		resp.OverstayGraceEnd = b.OverstayGraceEnd.Format(time.RFC3339)
	}
	return resp
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, booking.ErrNoPendingExtension):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidWindow), errors.Is(err, booking.ErrInvalidExtension):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrIllegalTransition),
		errors.Is(err, booking.ErrNotCancelable),
		errors.Is(err, booking.ErrApprovalWindowExpired),
		errors.Is(err, booking.ErrConflict),
		errors.Is(err, booking.ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, booking.ErrPaymentAuthorizationFailed), errors.Is(err, booking.ErrPaymentCaptureFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
