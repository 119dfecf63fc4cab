package repository

import (
	"context"

	"booking-engine/internal/domain/entity"
)

// PriceQuoteRepository defines the interface for the pricing service
type PriceQuoteRepository interface {
	Quote(ctx context.Context, req entity.PriceQuoteRequest) (entity.PriceInput, error)
}
