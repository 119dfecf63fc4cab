package handler

import (
	"net/http"
	"strconv"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/usecase"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ActorHeader names the caller recorded in the audit trail
const ActorHeader = "X-Actor"

// BookingHandler exposes the booking lifecycle over HTTP
type BookingHandler struct {
	engine   *usecase.BookingEngine
	payments *usecase.PaymentReconciler
	expiry   *usecase.ExpiryReconciler
	logger   logger.Logger
}

// NewBookingHandler creates a booking handler
func NewBookingHandler(engine *usecase.BookingEngine, payments *usecase.PaymentReconciler, expiry *usecase.ExpiryReconciler, logger logger.Logger) *BookingHandler {
	return &BookingHandler{
		engine:   engine,
		payments: payments,
		expiry:   expiry,
		logger:   logger.With("component", "http"),
	}
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	start, err := utils.ParseDateTime(req.StartDateTime, nil)
	if err != nil {
		respondError(c, h.logger, &entity.ValidationError{Field: "startDateTime", Message: err.Error()})
		return
	}
	end, err := utils.ParseDateTime(req.EndDateTime, nil)
	if err != nil {
		respondError(c, h.logger, &entity.ValidationError{Field: "endDateTime", Message: err.Error()})
		return
	}

	b, err := h.engine.Create(c.Request.Context(), usecase.CreateBookingInput{
		RenterID:        req.RenterID,
		ResourceID:      req.ResourceID,
		OperatorID:      req.OperatorID,
		WithOperator:    req.WithOperator,
		Start:           start,
		End:             end,
		Pickup:          req.PickupLocation.toEntity(),
		Dropoff:         req.DropoffLocation.toEntity(),
		SpecialRequests: req.SpecialRequests,
		Notes:           req.Notes,
		Pricing: entity.PriceInput{
			ResourcePrice:  req.ResourcePrice,
			OperatorPrice:  req.OperatorPrice,
			TotalPrice:     req.TotalPrice,
			DiscountAmount: req.DiscountAmount,
		},
		Actor: c.GetHeader(ActorHeader),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": toBookingResponse(b)})
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	b, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toBookingResponse(b)})
}

// GetBookingByNumber handles GET /bookings/number/:number
func (h *BookingHandler) GetBookingByNumber(c *gin.Context) {
	var uri bookingNumberURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondBindError(c, err)
		return
	}
	b, err := h.engine.GetByNumber(c.Request.Context(), uri.Number)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toBookingResponse(b)})
}

// ListBookings handles GET /bookings?renter_id= or ?resource_id=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	var (
		bookings []*entity.Booking
		err      error
	)
	switch {
	case c.Query("renter_id") != "":
		id, perr := utils.ParseID(c.Query("renter_id"))
		if perr != nil {
			respondError(c, h.logger, &entity.ValidationError{Field: "renter_id", Message: perr.Error()})
			return
		}
		bookings, err = h.engine.ListByRenter(c.Request.Context(), id)
	case c.Query("resource_id") != "":
		id, perr := utils.ParseID(c.Query("resource_id"))
		if perr != nil {
			respondError(c, h.logger, &entity.ValidationError{Field: "resource_id", Message: perr.Error()})
			return
		}
		bookings, err = h.engine.ListByResource(c.Request.Context(), id)
	default:
		respondError(c, h.logger, &entity.ValidationError{Message: "renter_id or resource_id is required"})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toBookingResponses(bookings), "count": len(bookings)})
}

// AuditTrail handles GET /bookings/:id/audit
func (h *BookingHandler) AuditTrail(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	records, err := h.engine.AuditTrail(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records, "count": len(records)})
}

// Availability handles GET /availability?resource_id=&start=&end=
func (h *BookingHandler) Availability(c *gin.Context) {
	resourceID, err := utils.ParseID(c.Query("resource_id"))
	if err != nil {
		respondError(c, h.logger, &entity.ValidationError{Field: "resource_id", Message: err.Error()})
		return
	}
	start, err := utils.ParseDateTime(c.Query("start"), nil)
	if err != nil {
		respondError(c, h.logger, &entity.ValidationError{Field: "start", Message: err.Error()})
		return
	}
	end, err := utils.ParseDateTime(c.Query("end"), nil)
	if err != nil {
		respondError(c, h.logger, &entity.ValidationError{Field: "end", Message: err.Error()})
		return
	}

	available, err := h.engine.IsAvailable(c.Request.Context(), resourceID, start, end)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"resourceId": resourceID,
		"start":      start,
		"end":        end,
		"available":  available,
	}})
}

// ConfirmBooking handles PATCH /bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	h.command(c, func(id uint, actor string) (*entity.Booking, error) {
		return h.engine.Confirm(c.Request.Context(), id, actor)
	})
}

// StartBooking handles PATCH /bookings/:id/start
func (h *BookingHandler) StartBooking(c *gin.Context) {
	h.command(c, func(id uint, actor string) (*entity.Booking, error) {
		return h.engine.Start(c.Request.Context(), id, actor)
	})
}

// CompleteBooking handles PATCH /bookings/:id/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.command(c, func(id uint, actor string) (*entity.Booking, error) {
		return h.engine.Complete(c.Request.Context(), id, actor)
	})
}

// CancelBooking handles PATCH /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	req, ok := h.reason(c)
	if !ok {
		return
	}
	h.command(c, func(id uint, actor string) (*entity.Booking, error) {
		return h.engine.Cancel(c.Request.Context(), id, req.Reason, actor)
	})
}

// RejectBooking handles PATCH /bookings/:id/reject
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	req, ok := h.reason(c)
	if !ok {
		return
	}
	h.command(c, func(id uint, actor string) (*entity.Booking, error) {
		return h.engine.Reject(c.Request.Context(), id, req.Reason, actor)
	})
}

// CorrectCompleted handles POST /admin/bookings/:id/correct-completed
func (h *BookingHandler) CorrectCompleted(c *gin.Context) {
	var req CorrectionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	h.command(c, func(id uint, actor string) (*entity.Booking, error) {
		return h.expiry.CorrectCancelledPaidBookingToCompleted(c.Request.Context(), id, actor, req.Note)
	})
}

// RunSweep handles POST /admin/sweep
func (h *BookingHandler) RunSweep(c *gin.Context) {
	report, err := h.expiry.RunSweep(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// CreateTransaction handles POST /payments/transactions
func (h *BookingHandler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	tx, err := h.payments.CreateTransaction(c.Request.Context(), req.BookingID, usecase.TransactionInput{
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		CallbackURL:  req.CallbackURL,
		Description:  req.Description,
		Actor:        c.GetHeader(ActorHeader),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": toTransactionResponse(tx)})
}

// PaymentLink handles POST /payments/transactions/:txid/link
func (h *BookingHandler) PaymentLink(c *gin.Context) {
	link, err := h.payments.PaymentLink(c.Request.Context(), c.Param("txid"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"paymentUrl":    link.PaymentURL,
		"transactionId": link.TransactionID,
		"gatewaySlug":   link.GatewaySlug,
	}})
}

// TransactionStatus handles GET /payments/transactions/:txid/status
func (h *BookingHandler) TransactionStatus(c *gin.Context) {
	tx, err := h.payments.TransactionStatus(c.Request.Context(), c.Param("txid"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toTransactionResponse(tx)})
}

// BookingTransaction handles GET /payments/transactions/booking/:id
func (h *BookingHandler) BookingTransaction(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	tx, err := h.payments.TransactionForBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toTransactionResponse(tx)})
}

// VerifyTransaction handles POST /payments/transactions/:txid/verify
func (h *BookingHandler) VerifyTransaction(c *gin.Context) {
	h.verify(c, c.Param("txid"))
}

// PaymentCallback handles POST /payments/callback. The body only names the
// transaction; its status is always re-read from the gateway.
func (h *BookingHandler) PaymentCallback(c *gin.Context) {
	var req PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	h.logger.Info("Payment callback received",
		"transactionID", req.TransactionID,
		"reportedStatus", req.Status)
	h.verify(c, req.TransactionID)
}

func (h *BookingHandler) verify(c *gin.Context, transactionID string) {
	res, err := h.payments.VerifyTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toVerificationResponse(res)})
}

func (h *BookingHandler) command(c *gin.Context, run func(id uint, actor string) (*entity.Booking, error)) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	b, err := run(id, c.GetHeader(ActorHeader))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toBookingResponse(b)})
}

func (h *BookingHandler) reason(c *gin.Context) (ReasonRequest, bool) {
	var req ReasonRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return req, false
	}
	return req, true
}

func (h *BookingHandler) bookingID(c *gin.Context) (uint, bool) {
	id, err := utils.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, &entity.ValidationError{Field: "id", Message: err.Error()})
		return 0, false
	}
	return id, true
}
