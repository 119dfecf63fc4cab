package usecase

import (
	"context"
	"errors"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"
)

// MaxEvaluations is the number of times a command is evaluated against a
// booking before a version conflict is surfaced to the caller.
const MaxEvaluations = 2

// Decision computes the write for a freshly loaded booking. A nil result with
// a nil error means the desired state already holds and nothing is written.
type Decision func(current *entity.Booking) (*TransitionResult, error)

// ReloadAndReevaluate applies a Decision with optimistic concurrency. On a
// version mismatch it reloads the booking and evaluates the Decision again
// instead of replaying the original write.
type ReloadAndReevaluate struct {
	bookings repository.BookingRepository
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// NewReloadAndReevaluate creates the versioned write strategy
func NewReloadAndReevaluate(bookings repository.BookingRepository, logger logger.Logger, m *metrics.Metrics) *ReloadAndReevaluate {
	return &ReloadAndReevaluate{bookings: bookings, logger: logger, metrics: m}
}

// Outcome of a versioned write
type Outcome struct {
	// Booking is the committed booking, or the current one when nothing was written
	Booking *entity.Booking
	// Result is nil when nothing was written
	Result *TransitionResult
	// Reloaded reports that at least one version conflict occurred
	Reloaded bool
}

// Apply evaluates decide against initial, or a fresh load of id when initial is nil
func (s *ReloadAndReevaluate) Apply(ctx context.Context, id uint, initial *entity.Booking, decide Decision) (*Outcome, error) {
	current := initial
	reloaded := false

	for attempt := 1; attempt <= MaxEvaluations; attempt++ {
		if current == nil {
			b, err := s.bookings.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			current = b
		}

		res, err := decide(current)
		if err != nil {
			if reloaded {
				s.metrics.ConcurrencyConflicts.WithLabelValues("reevaluated_rejected").Inc()
			}
			return &Outcome{Booking: current, Reloaded: reloaded}, err
		}
		if res == nil {
			if reloaded {
				s.metrics.ConcurrencyConflicts.WithLabelValues("reevaluated_noop").Inc()
			}
			return &Outcome{Booking: current, Reloaded: reloaded}, nil
		}

		err = s.bookings.Update(ctx, res.Booking, repository.UpdateOptions{RequireNoConflict: res.RequireNoConflict})
		if err == nil {
			if reloaded {
				s.metrics.ConcurrencyConflicts.WithLabelValues("reevaluated_applied").Inc()
			}
			return &Outcome{Booking: res.Booking, Result: res, Reloaded: reloaded}, nil
		}
		if !errors.Is(err, entity.ErrConcurrencyConflict) {
			return &Outcome{Booking: current, Reloaded: reloaded}, err
		}

		s.logger.Warn("Concurrent update detected, reloading booking",
			"bookingID", id,
			"action", res.Action,
			"attempt", attempt)
		reloaded = true
		current = nil
	}

	s.metrics.ConcurrencyConflicts.WithLabelValues("surfaced").Inc()
	return nil, &entity.ConcurrencyConflictError{BookingID: id, Attempts: MaxEvaluations}
}
