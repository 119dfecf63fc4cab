package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxNumberAttempts = 3

var tracer = otel.Tracer("booking-engine/usecase")

// CreateBookingInput is a reservation request
type CreateBookingInput struct {
	RenterID        uint
	ResourceID      uint
	OperatorID      *uint
	WithOperator    bool
	Start           time.Time
	End             time.Time
	Pickup          entity.Location
	Dropoff         entity.Location
	SpecialRequests string
	Notes           string
	Pricing         entity.PriceInput
	Actor           string
}

// EngineOptions configure pricing trust
type EngineOptions struct {
	// TrustClientPricing accepts caller totals; when false the quoter is always used
	TrustClientPricing bool
}

// BookingEngine owns booking creation and user-initiated lifecycle commands
type BookingEngine struct {
	bookings   repository.BookingRepository
	audits     repository.AuditRepository
	quoter     repository.PriceQuoteRepository
	conflicts  *ConflictChecker
	writer     *ReloadAndReevaluate
	effects    *EffectFactory
	dispatcher Dispatcher
	clock      clockwork.Clock
	logger     logger.Logger
	metrics    *metrics.Metrics
	opts       EngineOptions
}

// NewBookingEngine creates a booking engine. quoter may be nil.
func NewBookingEngine(
	bookings repository.BookingRepository,
	audits repository.AuditRepository,
	quoter repository.PriceQuoteRepository,
	effects *EffectFactory,
	dispatcher Dispatcher,
	clock clockwork.Clock,
	logger logger.Logger,
	m *metrics.Metrics,
	opts EngineOptions,
) *BookingEngine {
	log := logger.With("component", "booking-engine")
	return &BookingEngine{
		bookings:   bookings,
		audits:     audits,
		quoter:     quoter,
		conflicts:  NewConflictChecker(bookings),
		writer:     NewReloadAndReevaluate(bookings, log, m),
		effects:    effects,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     log,
		metrics:    m,
		opts:       opts,
	}
}

// Create validates, prices and persists a PENDING booking
func (e *BookingEngine) Create(ctx context.Context, in CreateBookingInput) (*entity.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingEngine.Create", trace.WithAttributes(
		attribute.Int64("resource.id", int64(in.ResourceID)),
		attribute.Int64("renter.id", int64(in.RenterID)),
	))
	defer span.End()

	now := e.clock.Now()
	period, err := e.validateCreate(in, now)
	if err != nil {
		return nil, err
	}

	pricing, err := e.resolvePricing(ctx, in, period)
	if err != nil {
		return nil, err
	}

	if err := e.conflicts.Ensure(ctx, in.ResourceID, period.Start, period.End, 0); err != nil {
		return nil, err
	}

	b := &entity.Booking{
		RenterID:        in.RenterID,
		ResourceID:      in.ResourceID,
		OperatorID:      in.OperatorID,
		WithOperator:    in.WithOperator || in.OperatorID != nil,
		Period:          period,
		Pickup:          in.Pickup,
		Dropoff:         in.Dropoff,
		SpecialRequests: in.SpecialRequests,
		Notes:           in.Notes,
		Pricing:         pricing,
		State:           entity.Pending{},
	}

	for attempt := 1; ; attempt++ {
		b.Number = entity.NewBookingNumber()
		err = e.bookings.Create(ctx, b)
		if err == nil {
			break
		}
		if errors.Is(err, entity.ErrDuplicateKey) && attempt < maxNumberAttempts {
			e.logger.Warn("Booking number collision, regenerating", "number", b.Number, "attempt", attempt)
			continue
		}
		return nil, err
	}

	e.logger.Info("Booking created",
		"bookingID", b.ID,
		"number", b.Number,
		"resourceID", b.ResourceID,
		"start", b.Period.Start,
		"end", b.Period.End)
	e.metrics.Transitions.WithLabelValues("create", string(entity.StatusPending)).Inc()
	e.dispatcher.Dispatch(e.effects.ForCreate(b, actorOr(in.Actor), now)...)

	return b, nil
}

func (e *BookingEngine) validateCreate(in CreateBookingInput, now time.Time) (entity.Period, error) {
	if in.RenterID == 0 {
		return entity.Period{}, &entity.ValidationError{Field: "renterId", Message: "is required"}
	}
	if in.ResourceID == 0 {
		return entity.Period{}, &entity.ValidationError{Field: "resourceId", Message: "is required"}
	}
	period, err := entity.NewPeriod(in.Start, in.End)
	if err != nil {
		return entity.Period{}, err
	}
	if period.Start.Before(now) {
		return entity.Period{}, &entity.ValidationError{Field: "start", Message: "must not be in the past"}
	}
	return period, nil
}

func (e *BookingEngine) resolvePricing(ctx context.Context, in CreateBookingInput, period entity.Period) (entity.Pricing, error) {
	useQuote := e.quoter != nil && (!e.opts.TrustClientPricing || !in.Pricing.HasTotal())
	if !useQuote {
		return entity.ResolvePricing(in.Pricing)
	}

	quoted, err := e.quoter.Quote(ctx, entity.PriceQuoteRequest{
		ResourceID:   in.ResourceID,
		OperatorID:   in.OperatorID,
		WithOperator: in.WithOperator || in.OperatorID != nil,
		Start:        period.Start,
		End:          period.End,
	})
	if err != nil {
		return entity.Pricing{}, fmt.Errorf("failed to quote price: %w", err)
	}
	if in.Pricing.DiscountAmount != nil && quoted.DiscountAmount == nil {
		quoted.DiscountAmount = in.Pricing.DiscountAmount
	}
	return entity.ResolvePricing(quoted)
}

// Get returns a booking by id
func (e *BookingEngine) Get(ctx context.Context, id uint) (*entity.Booking, error) {
	return e.bookings.FindByID(ctx, id)
}

// GetByNumber returns a booking by its booking number
func (e *BookingEngine) GetByNumber(ctx context.Context, number string) (*entity.Booking, error) {
	return e.bookings.FindByNumber(ctx, number)
}

// ListByRenter returns a renter's bookings, newest first
func (e *BookingEngine) ListByRenter(ctx context.Context, renterID uint) ([]*entity.Booking, error) {
	return e.bookings.FindByRenter(ctx, renterID)
}

// ListByResource returns a resource's bookings, newest first
func (e *BookingEngine) ListByResource(ctx context.Context, resourceID uint) ([]*entity.Booking, error) {
	return e.bookings.FindByResource(ctx, resourceID)
}

// IsAvailable reports whether no blocking booking overlaps the period
func (e *BookingEngine) IsAvailable(ctx context.Context, resourceID uint, start, end time.Time) (bool, error) {
	conflict, err := e.conflicts.HasConflict(ctx, resourceID, start, end)
	if err != nil {
		return false, err
	}
	return !conflict, nil
}

// AuditTrail returns the most recent audit records of a booking
func (e *BookingEngine) AuditTrail(ctx context.Context, id uint, limit int) ([]*entity.AuditRecord, error) {
	if _, err := e.bookings.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return e.audits.FindByBooking(ctx, id, limit)
}

// Confirm moves PENDING to CONFIRMED if no blocking booking overlaps
func (e *BookingEngine) Confirm(ctx context.Context, id uint, actor string) (*entity.Booking, error) {
	return e.transition(ctx, id, ActionConfirm, "", actor)
}

// Start moves CONFIRMED to ONGOING and records the actual start
func (e *BookingEngine) Start(ctx context.Context, id uint, actor string) (*entity.Booking, error) {
	return e.transition(ctx, id, ActionStart, "", actor)
}

// Complete moves ONGOING to COMPLETED and records the actual end
func (e *BookingEngine) Complete(ctx context.Context, id uint, actor string) (*entity.Booking, error) {
	return e.transition(ctx, id, ActionComplete, "", actor)
}

// Cancel moves PENDING or CONFIRMED to CANCELLED
func (e *BookingEngine) Cancel(ctx context.Context, id uint, reason, actor string) (*entity.Booking, error) {
	return e.transition(ctx, id, ActionCancel, reason, actor)
}

// Reject moves PENDING to REJECTED
func (e *BookingEngine) Reject(ctx context.Context, id uint, reason, actor string) (*entity.Booking, error) {
	return e.transition(ctx, id, ActionReject, reason, actor)
}

func (e *BookingEngine) transition(ctx context.Context, id uint, action Action, reason, actor string) (*entity.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingEngine."+string(action), trace.WithAttributes(
		attribute.Int64("booking.id", int64(id)),
	))
	defer span.End()

	now := e.clock.Now()
	out, err := e.writer.Apply(ctx, id, nil, func(current *entity.Booking) (*TransitionResult, error) {
		return ApplyTransition(current, Command{Action: action, Reason: reason, Now: now})
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, entity.ErrConflict) {
			e.logger.Warn("Transition blocked by overlapping booking", "bookingID", id, "action", action)
		}
		return nil, err
	}

	res := out.Result
	e.logger.Info("Booking transitioned",
		"bookingID", id,
		"action", action,
		"from", res.From,
		"to", res.Booking.Status(),
		"actor", actorOr(actor))
	e.metrics.Transitions.WithLabelValues(string(action), string(res.Booking.Status())).Inc()
	e.dispatcher.Dispatch(e.effects.ForTransition(res, actorOr(actor), now, true)...)

	return out.Booking, nil
}

func actorOr(actor string) string {
	if actor == "" {
		return entity.ActorSystem
	}
	return actor
}
