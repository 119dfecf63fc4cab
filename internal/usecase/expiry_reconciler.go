package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSweepInProgress is returned when a sweep is requested while one is running
var ErrSweepInProgress = errors.New("expiry sweep already in progress")

// DefaultSweepBatchSize bounds candidates fetched per status per run
const DefaultSweepBatchSize = 500

// Sweep item outcomes
const (
	sweepCompleted        = "completed"
	sweepExpiredUnstarted = "expired_unstarted"
	sweepExpiredUnpaid    = "expired_unpaid"
	sweepSkipped          = "skipped"
	sweepFailed           = "failed"
)

// SweepReport summarizes one expiry sweep
type SweepReport struct {
	Now              time.Time     `json:"now"`
	Completed        int           `json:"completed"`
	ExpiredUnstarted int           `json:"expiredUnstarted"`
	ExpiredUnpaid    int           `json:"expiredUnpaid"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	FetchFailures    int           `json:"fetchFailures"`
	Duration         time.Duration `json:"duration"`
}

// Processed is the number of bookings the sweep moved
func (r *SweepReport) Processed() int {
	return r.Completed + r.ExpiredUnstarted + r.ExpiredUnpaid
}

// ExpiryReconciler advances bookings whose scheduled end has passed
type ExpiryReconciler struct {
	bookings   repository.BookingRepository
	audits     repository.AuditRepository
	writer     *ReloadAndReevaluate
	effects    *EffectFactory
	dispatcher Dispatcher
	clock      clockwork.Clock
	logger     logger.Logger
	metrics    *metrics.Metrics
	batchSize  int

	running sync.Mutex
}

// NewExpiryReconciler creates an expiry reconciler
func NewExpiryReconciler(
	bookings repository.BookingRepository,
	audits repository.AuditRepository,
	effects *EffectFactory,
	dispatcher Dispatcher,
	clock clockwork.Clock,
	logger logger.Logger,
	m *metrics.Metrics,
	batchSize int,
) *ExpiryReconciler {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	log := logger.With("component", "expiry-reconciler")
	return &ExpiryReconciler{
		bookings:   bookings,
		audits:     audits,
		writer:     NewReloadAndReevaluate(bookings, log, m),
		effects:    effects,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     log,
		metrics:    m,
		batchSize:  batchSize,
	}
}

type sweepPass struct {
	status  entity.BookingStatus
	action  Action
	outcome string
}

// ONGOING first so auto-completion is not starved by expiry volume
var sweepPasses = []sweepPass{
	{status: entity.StatusOngoing, action: ActionAutoComplete, outcome: sweepCompleted},
	{status: entity.StatusConfirmed, action: ActionExpire, outcome: sweepExpiredUnstarted},
	{status: entity.StatusPending, action: ActionExpire, outcome: sweepExpiredUnpaid},
}

// RunSweep runs the three expiry passes with a single notion of now.
// Only one sweep runs at a time per reconciler; an overlapping call gets
// ErrSweepInProgress. Per-booking failures are logged and counted.
func (r *ExpiryReconciler) RunSweep(ctx context.Context) (*SweepReport, error) {
	if !r.running.TryLock() {
		r.metrics.SweepRuns.WithLabelValues("skipped_in_progress").Inc()
		return nil, ErrSweepInProgress
	}
	defer r.running.Unlock()

	ctx, span := tracer.Start(ctx, "ExpiryReconciler.RunSweep")
	defer span.End()

	started := time.Now()
	now := r.clock.Now()
	report := &SweepReport{Now: now}

	for _, pass := range sweepPasses {
		candidates, err := r.bookings.FindExpired(ctx, pass.status, now, r.batchSize)
		if err != nil {
			report.FetchFailures++
			r.logger.Error("Failed to fetch expiry candidates", "status", pass.status, "error", err)
			r.metrics.ErrorsCount.WithLabelValues("sweep_fetch").Inc()
			continue
		}
		for _, b := range candidates {
			if ctx.Err() != nil {
				break
			}
			r.record(report, r.sweepOne(ctx, b, pass, now))
		}
	}

	report.Duration = time.Since(started)
	r.metrics.SweepDuration.Observe(report.Duration.Seconds())
	r.metrics.SweepRuns.WithLabelValues("completed").Inc()
	span.SetAttributes(
		attribute.Int("sweep.processed", report.Processed()),
		attribute.Int("sweep.failed", report.Failed),
	)
	if report.Processed() > 0 || report.Failed > 0 || report.FetchFailures > 0 {
		r.logger.Info("Expiry sweep finished",
			"completed", report.Completed,
			"expiredUnstarted", report.ExpiredUnstarted,
			"expiredUnpaid", report.ExpiredUnpaid,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"fetchFailures", report.FetchFailures,
			"duration", report.Duration)
	}
	return report, ctx.Err()
}

func (r *ExpiryReconciler) sweepOne(ctx context.Context, candidate *entity.Booking, pass sweepPass, now time.Time) string {
	out, err := r.writer.Apply(ctx, candidate.ID, candidate, func(current *entity.Booking) (*TransitionResult, error) {
		if current.Status() != pass.status {
			return nil, nil
		}
		return ApplyTransition(current, Command{Action: pass.action, Now: now})
	})
	if err != nil {
		if errors.Is(err, entity.ErrInvalidState) || errors.Is(err, entity.ErrValidation) || errors.Is(err, entity.ErrConflict) {
			r.logger.Debug("Expiry guard no longer holds, skipping", "bookingID", candidate.ID, "error", err)
			return sweepSkipped
		}
		r.logger.Error("Failed to expire booking",
			"bookingID", candidate.ID,
			"number", candidate.Number,
			"action", pass.action,
			"error", err)
		return sweepFailed
	}
	if out.Result == nil {
		return sweepSkipped
	}

	r.logger.Info("Booking reconciled by expiry sweep",
		"bookingID", candidate.ID,
		"number", candidate.Number,
		"from", out.Result.From,
		"to", out.Booking.Status(),
		"reason", out.Result.Reason)
	r.metrics.Transitions.WithLabelValues(string(pass.action), string(out.Booking.Status())).Inc()
	r.dispatcher.Dispatch(r.effects.ForTransition(out.Result, entity.ActorReconciler, now, true)...)
	return pass.outcome
}

func (r *ExpiryReconciler) record(report *SweepReport, outcome string) {
	switch outcome {
	case sweepCompleted:
		report.Completed++
	case sweepExpiredUnstarted:
		report.ExpiredUnstarted++
	case sweepExpiredUnpaid:
		report.ExpiredUnpaid++
	case sweepSkipped:
		report.Skipped++
	case sweepFailed:
		report.Failed++
	}
	r.metrics.SweepItems.WithLabelValues(outcome).Inc()
}

// CorrectCancelledPaidBookingToCompleted converts a paid booking that was
// cancelled after its period ended into COMPLETED, with the scheduled period
// as its actual period. The audit record is written before returning.
func (r *ExpiryReconciler) CorrectCancelledPaidBookingToCompleted(ctx context.Context, id uint, actor, note string) (*entity.Booking, error) {
	ctx, span := tracer.Start(ctx, "ExpiryReconciler.CorrectCancelledPaidBookingToCompleted", trace.WithAttributes(
		attribute.Int64("booking.id", int64(id)),
	))
	defer span.End()

	now := r.clock.Now()
	var cancelledReason string
	out, err := r.writer.Apply(ctx, id, nil, func(current *entity.Booking) (*TransitionResult, error) {
		if reason := current.CancellationReason(); reason != nil {
			cancelledReason = *reason
		}
		return ApplyTransition(current, Command{Action: ActionCorrectCompletion, Reason: note, Now: now})
	})
	if err != nil {
		return nil, err
	}

	actor = actorOr(actor)
	rec := TransitionAudit(out.Result, actor, now)
	rec.Metadata = map[string]string{"cancellationReason": cancelledReason}
	if err := r.audits.Append(ctx, rec); err != nil {
		r.logger.Error("Failed to write correction audit record",
			"bookingID", id,
			"actor", actor,
			"error", err)
		r.metrics.SideEffectFailures.WithLabelValues(EffectAudit).Inc()
	}

	r.logger.Warn("Cancelled paid booking corrected to completed",
		"bookingID", id,
		"number", out.Booking.Number,
		"actor", actor,
		"note", note)
	r.metrics.Transitions.WithLabelValues(string(ActionCorrectCompletion), string(entity.StatusCompleted)).Inc()
	r.dispatcher.Dispatch(r.effects.ForTransition(out.Result, actor, now, false)...)

	return out.Booking, nil
}
