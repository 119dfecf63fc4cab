package repository

import (
	"context"
	"time"

	"booking-engine/internal/domain/entity"
)

// UpdateOptions tune a versioned booking write
type UpdateOptions struct {
	// RequireNoConflict re-checks resource overlap, excluding the booking itself,
	// inside the same critical section as the write. Used for transitions into CONFIRMED.
	RequireNoConflict bool
}

// BookingRepository defines the interface for booking storage operations.
//
// Create and Update serialize per resource, so a conflict check followed by a
// write is atomic. Update is a compare-and-set on Version: it fails with
// entity.ErrConcurrencyConflict when the stored version differs, and on
// success increments b.Version.
type BookingRepository interface {
	Create(ctx context.Context, b *entity.Booking) error
	FindByID(ctx context.Context, id uint) (*entity.Booking, error)
	FindByNumber(ctx context.Context, number string) (*entity.Booking, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*entity.Booking, error)
	FindByRenter(ctx context.Context, renterID uint) ([]*entity.Booking, error)
	FindByResource(ctx context.Context, resourceID uint) ([]*entity.Booking, error)
	HasConflict(ctx context.Context, resourceID uint, start, end time.Time, excludeID uint) (bool, error)
	Update(ctx context.Context, b *entity.Booking, opts UpdateOptions) error
	FindExpired(ctx context.Context, status entity.BookingStatus, now time.Time, limit int) ([]*entity.Booking, error)
}
