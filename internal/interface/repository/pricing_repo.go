package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// HTTPPriceQuoteRepository asks the pricing service for a quote
type HTTPPriceQuoteRepository struct {
	logger  logger.Logger
	baseURL string
	client  *http.Client
}

// NewHTTPPriceQuoteRepository creates a price quote repository
func NewHTTPPriceQuoteRepository(baseURL string, client *http.Client, logger logger.Logger) repository.PriceQuoteRepository {
	return &HTTPPriceQuoteRepository{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type priceCalculationRequest struct {
	VehicleID     uint   `json:"vehicleId"`
	DriverID      *uint  `json:"driverId,omitempty"`
	WithDriver    bool   `json:"withDriver"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
}

type priceCalculationResponse struct {
	BasePrice      decimal.NullDecimal `json:"basePrice"`
	DriverPrice    decimal.NullDecimal `json:"driverPrice"`
	Subtotal       decimal.NullDecimal `json:"subtotal"`
	DiscountAmount decimal.NullDecimal `json:"discountAmount"`
	TotalPrice     decimal.NullDecimal `json:"totalPrice"`
}

// Quote returns a price input whose total is the pre-discount subtotal
func (r *HTTPPriceQuoteRepository) Quote(ctx context.Context, req entity.PriceQuoteRequest) (entity.PriceInput, error) {
	var resp priceCalculationResponse
	err := doJSON(ctx, r.client, "pricing service", http.MethodPost, r.baseURL+"/api/pricing/calculate", priceCalculationRequest{
		VehicleID:     req.ResourceID,
		DriverID:      req.OperatorID,
		WithDriver:    req.WithOperator,
		StartDateTime: req.Start.UTC().Format(time.RFC3339),
		EndDateTime:   req.End.UTC().Format(time.RFC3339),
	}, &resp, "", "")
	if err != nil {
		return entity.PriceInput{}, err
	}

	total := resp.Subtotal
	if !total.Valid {
		total = resp.TotalPrice
		if total.Valid && resp.DiscountAmount.Valid {
			total.Decimal = total.Decimal.Add(resp.DiscountAmount.Decimal)
		}
	}
	if !total.Valid {
		return entity.PriceInput{}, &entity.UpstreamError{Service: "pricing service", Err: fmt.Errorf("quote without total")}
	}

	in := entity.PriceInput{TotalPrice: &total.Decimal}
	if resp.DriverPrice.Valid {
		in.OperatorPrice = &resp.DriverPrice.Decimal
	}
	if resp.DiscountAmount.Valid {
		in.DiscountAmount = &resp.DiscountAmount.Decimal
	}

	r.logger.Debug("Price quoted",
		"resourceID", req.ResourceID,
		"total", total.Decimal.String())
	return in, nil
}
