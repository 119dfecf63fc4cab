package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/usecase"
	"booking-engine/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys on the payment exchange
const (
	RKPaymentPaid     = "payment.paid"
	RKPaymentVerified = "payment.verified"
	RKPaymentFailed   = "payment.failed"
)

// PaymentKeys are the keys the payment queue binds to
var PaymentKeys = []string{RKPaymentPaid, RKPaymentVerified, RKPaymentFailed}

// PaymentEvent is the message body published by the payment service
type PaymentEvent struct {
	TransactionID string `json:"transactionId"`
	InvoiceID     string `json:"invoiceId"`
	Status        string `json:"status"`
}

// TransactionVerifier re-verifies a transaction against the gateway
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, transactionID string) (*usecase.VerificationResult, error)
}

// PaymentConsumer turns payment events into gateway verifications
type PaymentConsumer struct {
	verifier TransactionVerifier
	logger   logger.Logger
}

// NewPaymentConsumer creates a payment event consumer
func NewPaymentConsumer(verifier TransactionVerifier, logger logger.Logger) *PaymentConsumer {
	return &PaymentConsumer{verifier: verifier, logger: logger}
}

// Run handles deliveries until ctx is done or the channel closes
func (c *PaymentConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery. Transient failures are requeued; malformed
// messages are rejected without requeue; everything else is acknowledged.
func (c *PaymentConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	var ev PaymentEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil || strings.TrimSpace(ev.TransactionID) == "" {
		c.logger.Error("Malformed payment event",
			"routingKey", d.RoutingKey,
			"error", err)
		c.nack(d, ev.TransactionID, false)
		return
	}

	res, err := c.verifier.VerifyTransaction(ctx, ev.TransactionID)
	if err != nil {
		if retryable(err) {
			c.logger.Warn("Payment verification failed, requeueing",
				"transactionID", ev.TransactionID,
				"routingKey", d.RoutingKey,
				"error", err)
			c.nack(d, ev.TransactionID, !d.Redelivered)
			return
		}
		c.logger.Warn("Payment event dropped",
			"transactionID", ev.TransactionID,
			"routingKey", d.RoutingKey,
			"error", err)
		c.ack(d, ev.TransactionID)
		return
	}

	c.logger.Info("Payment event reconciled",
		"transactionID", ev.TransactionID,
		"routingKey", d.RoutingKey,
		"outcome", res.Outcome)
	c.ack(d, ev.TransactionID)
}

func (c *PaymentConsumer) ack(d amqp.Delivery, transactionID string) {
	if err := d.Ack(false); err != nil {
		c.logger.Warn("Failed to ack payment event",
			"transactionID", transactionID,
			"deliveryTag", d.DeliveryTag,
			"error", err)
	}
}

func (c *PaymentConsumer) nack(d amqp.Delivery, transactionID string, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		c.logger.Warn("Failed to nack payment event",
			"transactionID", transactionID,
			"deliveryTag", d.DeliveryTag,
			"requeue", requeue,
			"error", err)
	}
}

func retryable(err error) bool {
	return errors.Is(err, entity.ErrUpstreamUnavailable) ||
		errors.Is(err, entity.ErrConcurrencyConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}
