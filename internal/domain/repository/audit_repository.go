package repository

import (
	"context"

	"booking-engine/internal/domain/entity"
)

// AuditRepository defines the interface for the booking audit trail
type AuditRepository interface {
	Append(ctx context.Context, record *entity.AuditRecord) error
	FindByBooking(ctx context.Context, bookingID uint, limit int) ([]*entity.AuditRecord, error)
}
