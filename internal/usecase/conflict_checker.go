package usecase

import (
	"context"
	"errors"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
)

// ConflictChecker answers whether a resource is free for a period.
// Only CONFIRMED and ONGOING bookings block; PENDING never does.
type ConflictChecker struct {
	bookings repository.BookingRepository
}

// NewConflictChecker creates a conflict checker over the booking store
func NewConflictChecker(bookings repository.BookingRepository) *ConflictChecker {
	return &ConflictChecker{bookings: bookings}
}

// HasConflict reports an overlapping blocking booking. A store failure is
// returned as an upstream error, never as "no conflict".
func (c *ConflictChecker) HasConflict(ctx context.Context, resourceID uint, start, end time.Time) (bool, error) {
	return c.hasConflict(ctx, resourceID, start, end, 0)
}

// Ensure returns a ConflictError when the period overlaps a blocking booking
// other than excludeID
func (c *ConflictChecker) Ensure(ctx context.Context, resourceID uint, start, end time.Time, excludeID uint) error {
	conflict, err := c.hasConflict(ctx, resourceID, start, end, excludeID)
	if err != nil {
		return err
	}
	if conflict {
		return &entity.ConflictError{ResourceID: resourceID, Start: start, End: end}
	}
	return nil
}

func (c *ConflictChecker) hasConflict(ctx context.Context, resourceID uint, start, end time.Time, excludeID uint) (bool, error) {
	if _, err := entity.NewPeriod(start, end); err != nil {
		return false, err
	}
	conflict, err := c.bookings.HasConflict(ctx, resourceID, start, end, excludeID)
	if err != nil {
		if errors.Is(err, entity.ErrUpstreamUnavailable) {
			return false, err
		}
		return false, &entity.UpstreamError{Service: "booking store", Err: err}
	}
	return conflict, nil
}
