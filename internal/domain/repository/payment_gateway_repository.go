package repository

import (
	"context"

	"booking-engine/internal/domain/entity"
)

// PaymentGatewayRepository defines the interface for payment gateway operations
type PaymentGatewayRepository interface {
	CreateTransaction(ctx context.Context, req entity.TransactionRequest) (*entity.Transaction, error)
	PaymentLink(ctx context.Context, transactionID string) (*entity.PaymentLink, error)
	Inquire(ctx context.Context, transactionID string) (*entity.Transaction, error)
}
