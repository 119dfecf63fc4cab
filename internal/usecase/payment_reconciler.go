package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Payment outcomes recorded in metrics and returned to callers
const (
	PaymentOutcomeConfirmed        = "confirmed"
	PaymentOutcomeAlreadyConfirmed = "already_confirmed"
	PaymentOutcomeIgnored          = "ignored"
	PaymentOutcomeFailed           = "payment_failed"
	PaymentOutcomePending          = "payment_pending"
	PaymentOutcomeConflict         = "conflict"
)

// TransactionInput is the renter-side data for opening a transaction
type TransactionInput struct {
	MobileNumber string
	Email        string
	CallbackURL  string
	Description  string
	Actor        string
}

// VerificationResult pairs the gateway view with the booking after reconciliation
type VerificationResult struct {
	Transaction *entity.Transaction
	Booking     *entity.Booking
	Outcome     string
}

// PaymentReconciler applies verified gateway outcomes to bookings idempotently
type PaymentReconciler struct {
	bookings    repository.BookingRepository
	gateway     repository.PaymentGatewayRepository
	writer      *ReloadAndReevaluate
	effects     *EffectFactory
	dispatcher  Dispatcher
	clock       clockwork.Clock
	logger      logger.Logger
	metrics     *metrics.Metrics
	callbackURL string
}

// NewPaymentReconciler creates a payment reconciler
func NewPaymentReconciler(
	bookings repository.BookingRepository,
	gateway repository.PaymentGatewayRepository,
	effects *EffectFactory,
	dispatcher Dispatcher,
	clock clockwork.Clock,
	logger logger.Logger,
	m *metrics.Metrics,
	callbackURL string,
) *PaymentReconciler {
	log := logger.With("component", "payment-reconciler")
	return &PaymentReconciler{
		bookings:    bookings,
		gateway:     gateway,
		writer:      NewReloadAndReevaluate(bookings, log, m),
		effects:     effects,
		dispatcher:  dispatcher,
		clock:       clock,
		logger:      log,
		metrics:     m,
		callbackURL: callbackURL,
	}
}

// CreateTransaction opens a gateway transaction for a PENDING booking and
// stores the transaction reference on it
func (p *PaymentReconciler) CreateTransaction(ctx context.Context, bookingID uint, in TransactionInput) (*entity.Transaction, error) {
	ctx, span := tracer.Start(ctx, "PaymentReconciler.CreateTransaction", trace.WithAttributes(
		attribute.Int64("booking.id", int64(bookingID)),
	))
	defer span.End()

	b, err := p.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireUnpaidPending(b); err != nil {
		return nil, err
	}

	amount := b.Pricing.AmountMinorUnits()
	if amount < entity.MinTransactionAmount {
		return nil, &entity.ValidationError{Field: "amount", Message: fmt.Sprintf("must be at least %d minor units", entity.MinTransactionAmount)}
	}
	callback := in.CallbackURL
	if callback == "" {
		callback = p.callbackURL
	}
	if callback == "" {
		return nil, &entity.ValidationError{Field: "callbackUrl", Message: "is required"}
	}
	description := in.Description
	if description == "" {
		description = "Booking " + b.Number
	}

	tx, err := p.gateway.CreateTransaction(ctx, entity.TransactionRequest{
		InvoiceID:    b.InvoiceID(),
		Amount:       amount,
		MobileNumber: in.MobileNumber,
		Email:        in.Email,
		CallbackURL:  callback,
		Description:  description,
	})
	if err != nil {
		return nil, err
	}
	if tx.TransactionID == "" {
		return nil, &entity.UpstreamError{Service: "payment gateway", Err: errors.New("empty transaction id")}
	}

	out, err := p.writer.Apply(ctx, b.ID, b, func(current *entity.Booking) (*TransitionResult, error) {
		if current.TransactionID != nil && *current.TransactionID == tx.TransactionID {
			return nil, nil
		}
		if err := requireUnpaidPending(current); err != nil {
			return nil, err
		}
		next := current.Clone()
		id := tx.TransactionID
		next.TransactionID = &id
		return &TransitionResult{Action: ActionLinkTransaction, From: current.Status(), Booking: next}, nil
	})
	if err != nil {
		p.logger.Error("Failed to store transaction on booking",
			"bookingID", b.ID,
			"transactionID", tx.TransactionID,
			"error", err)
		return nil, err
	}

	p.logger.Info("Stored transaction for booking",
		"bookingID", b.ID,
		"number", b.Number,
		"transactionID", tx.TransactionID,
		"amount", amount)
	if out.Result != nil {
		p.dispatcher.Dispatch(p.effects.AuditOnly(&entity.AuditRecord{
			BookingID:     out.Booking.ID,
			BookingNumber: out.Booking.Number,
			Action:        entity.AuditTransactionLinked,
			FromStatus:    out.Booking.Status(),
			ToStatus:      out.Booking.Status(),
			Actor:         actorOr(in.Actor),
			Version:       out.Booking.Version,
			Metadata:      map[string]string{"transactionId": tx.TransactionID, "invoiceId": tx.InvoiceID},
			At:            p.clock.Now(),
		})...)
	}

	return tx, nil
}

// PaymentLink returns the URL where the renter pays
func (p *PaymentReconciler) PaymentLink(ctx context.Context, transactionID string) (*entity.PaymentLink, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, &entity.ValidationError{Field: "transactionId", Message: "is required"}
	}
	return p.gateway.PaymentLink(ctx, transactionID)
}

// TransactionStatus asks the gateway for the current transaction state
func (p *PaymentReconciler) TransactionStatus(ctx context.Context, transactionID string) (*entity.Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, &entity.ValidationError{Field: "transactionId", Message: "is required"}
	}
	return p.gateway.Inquire(ctx, transactionID)
}

// TransactionForBooking returns the gateway's view of the transaction linked
// to a booking
func (p *PaymentReconciler) TransactionForBooking(ctx context.Context, bookingID uint) (*entity.Transaction, error) {
	b, err := p.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.TransactionID == nil || *b.TransactionID == "" {
		return nil, &entity.NotFoundError{Kind: "transaction", Key: "booking " + b.Number}
	}
	return p.gateway.Inquire(ctx, *b.TransactionID)
}

// VerifyTransaction inquires the gateway and applies its verified status.
// The gateway is the source of truth; callbacks only trigger this.
func (p *PaymentReconciler) VerifyTransaction(ctx context.Context, transactionID string) (*VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "PaymentReconciler.VerifyTransaction", trace.WithAttributes(
		attribute.String("transaction.id", transactionID),
	))
	defer span.End()

	if _, err := p.bookings.FindByTransactionID(ctx, transactionID); err != nil {
		return nil, err
	}

	tx, err := p.gateway.Inquire(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	b, outcome, err := p.apply(ctx, transactionID, tx.NormalizedStatus())
	if err != nil {
		return nil, err
	}
	return &VerificationResult{Transaction: tx, Booking: b, Outcome: outcome}, nil
}

// ApplyVerifiedPayment applies an already verified gateway status.
//
// SUCCESS on a PENDING booking confirms it and marks it paid; SUCCESS on a
// CONFIRMED and paid booking is a no-op. Every other combination is logged
// and leaves the booking unchanged.
func (p *PaymentReconciler) ApplyVerifiedPayment(ctx context.Context, transactionID string, status entity.TransactionStatus) (*entity.Booking, error) {
	b, _, err := p.apply(ctx, transactionID, status)
	return b, err
}

func (p *PaymentReconciler) apply(ctx context.Context, transactionID string, status entity.TransactionStatus) (*entity.Booking, string, error) {
	b, err := p.bookings.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, "", err
	}

	switch status {
	case entity.TransactionSuccess:
	case entity.TransactionFailed, entity.TransactionCanceled:
		p.logger.Warn("Payment verification failed for booking",
			"bookingID", b.ID,
			"transactionID", transactionID,
			"status", status)
		p.metrics.PaymentVerifications.WithLabelValues(PaymentOutcomeFailed).Inc()
		return b, PaymentOutcomeFailed, nil
	default:
		p.logger.Info("Payment not settled yet",
			"bookingID", b.ID,
			"transactionID", transactionID,
			"status", status)
		p.metrics.PaymentVerifications.WithLabelValues(PaymentOutcomePending).Inc()
		return b, PaymentOutcomePending, nil
	}

	now := p.clock.Now()
	outcome := PaymentOutcomeConfirmed
	out, err := p.writer.Apply(ctx, b.ID, b, func(current *entity.Booking) (*TransitionResult, error) {
		switch {
		case current.Status() == entity.StatusConfirmed && current.PaymentCompleted:
			outcome = PaymentOutcomeAlreadyConfirmed
			return nil, nil
		case current.Status() == entity.StatusPending:
			outcome = PaymentOutcomeConfirmed
			return ApplyTransition(current, Command{Action: ActionPaymentConfirm, Now: now})
		default:
			outcome = PaymentOutcomeIgnored
			return nil, nil
		}
	})
	if err != nil {
		if errors.Is(err, entity.ErrConflict) {
			p.logger.Warn("Paid booking overlaps a confirmed booking, left pending for refund handling",
				"bookingID", b.ID,
				"transactionID", transactionID,
				"error", err)
			p.metrics.PaymentVerifications.WithLabelValues(PaymentOutcomeConflict).Inc()
		}
		return nil, "", err
	}

	switch outcome {
	case PaymentOutcomeAlreadyConfirmed:
		p.logger.Info("Booking is already confirmed, skipping update", "bookingID", b.ID)
	case PaymentOutcomeIgnored:
		p.logger.Info("Booking not pending, not updating",
			"bookingID", b.ID,
			"status", out.Booking.Status())
	case PaymentOutcomeConfirmed:
		p.logger.Info("Booking confirmed after successful payment verification",
			"bookingID", b.ID,
			"transactionID", transactionID)
		p.metrics.Transitions.WithLabelValues(string(ActionPaymentConfirm), string(entity.StatusConfirmed)).Inc()
		p.dispatcher.Dispatch(p.effects.ForTransition(out.Result, entity.ActorPayment, now, true)...)
	}
	p.metrics.PaymentVerifications.WithLabelValues(outcome).Inc()

	return out.Booking, outcome, nil
}

func requireUnpaidPending(b *entity.Booking) error {
	if b.Status() != entity.StatusPending {
		return &entity.InvalidStateError{Action: "create transaction for", Current: b.Status(), Allowed: []entity.BookingStatus{entity.StatusPending}}
	}
	if b.PaymentCompleted {
		return &entity.ValidationError{Field: "paymentCompleted", Message: "booking is already paid"}
	}
	return nil
}
