package handler

import (
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/usecase"

	"github.com/shopspring/decimal"
)

// LocationDTO is a pickup or drop-off point
type LocationDTO struct {
	Address   string   `json:"address" binding:"max=500"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// CreateBookingRequest is the body of POST /bookings
type CreateBookingRequest struct {
	RenterID        uint             `json:"renterId" binding:"required"`
	ResourceID      uint             `json:"resourceId" binding:"required"`
	OperatorID      *uint            `json:"operatorId"`
	WithOperator    bool             `json:"withOperator"`
	StartDateTime   string           `json:"startDateTime" binding:"required"`
	EndDateTime     string           `json:"endDateTime" binding:"required"`
	PickupLocation  LocationDTO      `json:"pickupLocation"`
	DropoffLocation LocationDTO      `json:"dropoffLocation"`
	SpecialRequests string           `json:"specialRequests" binding:"max=1000"`
	Notes           string           `json:"notes" binding:"max=1000"`
	ResourcePrice   *decimal.Decimal `json:"resourcePrice"`
	OperatorPrice   *decimal.Decimal `json:"operatorPrice"`
	TotalPrice      *decimal.Decimal `json:"totalPrice"`
	DiscountAmount  *decimal.Decimal `json:"discountAmount"`
}

// ReasonRequest carries an optional cancellation or rejection reason
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CorrectionRequest carries an optional operator note
type CorrectionRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// CreateTransactionRequest is the body of POST /payments/transactions
type CreateTransactionRequest struct {
	BookingID    uint   `json:"bookingId" binding:"required"`
	MobileNumber string `json:"mobileNumber" binding:"omitempty,max=20"`
	Email        string `json:"email" binding:"omitempty,email"`
	CallbackURL  string `json:"callbackUrl" binding:"omitempty,url"`
	Description  string `json:"description" binding:"max=255"`
}

// PaymentCallbackRequest is the gateway notification body
type PaymentCallbackRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	Status        string `json:"status"`
}

type bookingNumberURI struct {
	Number string `uri:"number" binding:"required,booking_number"`
}

// BookingResponse is the API view of a booking
type BookingResponse struct {
	ID                  uint            `json:"id"`
	BookingNumber       string          `json:"bookingNumber"`
	RenterID            uint            `json:"renterId"`
	ResourceID          uint            `json:"resourceId"`
	OperatorID          *uint           `json:"operatorId,omitempty"`
	WithOperator        bool            `json:"withOperator"`
	StartDateTime       time.Time       `json:"startDateTime"`
	EndDateTime         time.Time       `json:"endDateTime"`
	ActualStartDateTime *time.Time      `json:"actualStartDateTime,omitempty"`
	ActualEndDateTime   *time.Time      `json:"actualEndDateTime,omitempty"`
	PickupLocation      LocationDTO     `json:"pickupLocation"`
	DropoffLocation     LocationDTO     `json:"dropoffLocation"`
	SpecialRequests     string          `json:"specialRequests,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	ResourcePrice       decimal.Decimal `json:"resourcePrice"`
	OperatorPrice       decimal.Decimal `json:"operatorPrice"`
	TotalPrice          decimal.Decimal `json:"totalPrice"`
	DiscountAmount      decimal.Decimal `json:"discountAmount"`
	FinalPrice          decimal.Decimal `json:"finalPrice"`
	Status              string          `json:"status"`
	PaymentCompleted    bool            `json:"paymentCompleted"`
	TransactionID       *string         `json:"transactionId,omitempty"`
	CancellationReason  *string         `json:"cancellationReason,omitempty"`
	CancelledAt         *time.Time      `json:"cancelledAt,omitempty"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// TransactionResponse is the API view of a gateway transaction
type TransactionResponse struct {
	TransactionID string    `json:"transactionId"`
	InvoiceID     string    `json:"invoiceId"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	GatewaySlug   string    `json:"gatewaySlug,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// VerificationResponse reports the outcome of a payment verification
type VerificationResponse struct {
	Outcome     string               `json:"outcome"`
	Transaction *TransactionResponse `json:"transaction,omitempty"`
	Booking     *BookingResponse     `json:"booking,omitempty"`
}

func toLocationDTO(l entity.Location) LocationDTO {
	return LocationDTO{Address: l.Address, Latitude: l.Latitude, Longitude: l.Longitude}
}

func (l LocationDTO) toEntity() entity.Location {
	return entity.Location{Address: l.Address, Latitude: l.Latitude, Longitude: l.Longitude}
}

func toBookingResponse(b *entity.Booking) *BookingResponse {
	if b == nil {
		return nil
	}
	return &BookingResponse{
		ID:                  b.ID,
		BookingNumber:       b.Number,
		RenterID:            b.RenterID,
		ResourceID:          b.ResourceID,
		OperatorID:          b.OperatorID,
		WithOperator:        b.WithOperator,
		StartDateTime:       b.Period.Start,
		EndDateTime:         b.Period.End,
		ActualStartDateTime: b.ActualStart(),
		ActualEndDateTime:   b.ActualEnd(),
		PickupLocation:      toLocationDTO(b.Pickup),
		DropoffLocation:     toLocationDTO(b.Dropoff),
		SpecialRequests:     b.SpecialRequests,
		Notes:               b.Notes,
		ResourcePrice:       b.Pricing.ResourcePrice,
		OperatorPrice:       b.Pricing.OperatorPrice,
		TotalPrice:          b.Pricing.TotalPrice,
		DiscountAmount:      b.Pricing.DiscountAmount,
		FinalPrice:          b.Pricing.FinalPrice,
		Status:              string(b.Status()),
		PaymentCompleted:    b.PaymentCompleted,
		TransactionID:       b.TransactionID,
		CancellationReason:  b.CancellationReason(),
		CancelledAt:         b.CancelledAt(),
		Version:             b.Version,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func toBookingResponses(bs []*entity.Booking) []*BookingResponse {
	out := make([]*BookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b))
	}
	return out
}

func toTransactionResponse(t *entity.Transaction) *TransactionResponse {
	if t == nil {
		return nil
	}
	return &TransactionResponse{
		TransactionID: t.TransactionID,
		InvoiceID:     t.InvoiceID,
		Amount:        t.Amount,
		Status:        string(t.NormalizedStatus()),
		GatewaySlug:   t.GatewaySlug,
		CreatedAt:     t.CreatedAt,
	}
}

func toVerificationResponse(r *usecase.VerificationResult) *VerificationResponse {
	return &VerificationResponse{
		Outcome:     r.Outcome,
		Transaction: toTransactionResponse(r.Transaction),
		Booking:     toBookingResponse(r.Booking),
	}
}
