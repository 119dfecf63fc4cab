package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/usecase"
	"booking-engine/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAcknowledger struct {
	rec ackRecord
	err error
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.rec.acked = true
	return f.err
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.rec.nacked = true
	f.rec.requeue = requeue
	return f.err
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakeVerifier struct {
	calls []string
	err   error
}

func (f *fakeVerifier) VerifyTransaction(ctx context.Context, transactionID string) (*usecase.VerificationResult, error) {
	f.calls = append(f.calls, transactionID)
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.VerificationResult{Outcome: usecase.PaymentOutcomeConfirmed}, nil
}

func delivery(ack amqp.Acknowledger, body string, redelivered bool) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   RKPaymentPaid,
		Body:         []byte(body),
		Redelivered:  redelivered,
	}
}

func TestHandlePaymentEvent(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		redelivered bool
		err         error
		want        ackRecord
		verified    bool
	}{
		{
			name:     "verified and acked",
			body:     `{"transactionId":"trx-1","status":"SUCCESS"}`,
			want:     ackRecord{acked: true},
			verified: true,
		},
		{
			name: "malformed body is dropped",
			body: `{not json`,
			want: ackRecord{nacked: true},
		},
		{
			name: "missing transaction id is dropped",
			body: `{"invoiceId":"BOOKING-BK-1"}`,
			want: ackRecord{nacked: true},
		},
		{
			name:     "gateway down is requeued once",
			body:     `{"transactionId":"trx-2"}`,
			err:      &entity.UpstreamError{Service: "payment gateway", Err: errors.New("503")},
			want:     ackRecord{nacked: true, requeue: true},
			verified: true,
		},
		{
			name:        "redelivered failure is not requeued again",
			body:        `{"transactionId":"trx-3"}`,
			redelivered: true,
			err:         &entity.ConcurrencyConflictError{BookingID: 1, Attempts: 2},
			want:        ackRecord{nacked: true},
			verified:    true,
		},
		{
			name:     "unknown transaction is acked",
			body:     `{"transactionId":"trx-4"}`,
			err:      &entity.NotFoundError{Kind: "transaction", Key: "trx-4"},
			want:     ackRecord{acked: true},
			verified: true,
		},
		{
			name:     "conflict is acked",
			body:     `{"transactionId":"trx-5"}`,
			err:      &entity.ConflictError{ResourceID: 7},
			want:     ackRecord{acked: true},
			verified: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &fakeVerifier{err: tt.err}
			ack := &fakeAcknowledger{}
			c := NewPaymentConsumer(verifier, logger.NewNopLogger())

			c.Handle(context.Background(), delivery(ack, tt.body, tt.redelivered))
			assert.Equal(t, tt.want, ack.rec)
			assert.Equal(t, tt.verified, len(verifier.calls) == 1)
		})
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	verifier := &fakeVerifier{}
	c := NewPaymentConsumer(verifier, logger.NewNopLogger())

	msgs := make(chan amqp.Delivery, 2)
	msgs <- delivery(&fakeAcknowledger{}, `{"transactionId":"trx-1"}`, false)
	msgs <- delivery(&fakeAcknowledger{}, `{"transactionId":"trx-2"}`, false)
	close(msgs)

	require.NoError(t, c.Run(context.Background(), msgs))
	assert.Equal(t, []string{"trx-1", "trx-2"}, verifier.calls)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := NewPaymentConsumer(&fakeVerifier{}, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, make(chan amqp.Delivery)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestHandleLogsAcknowledgementFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := logger.NewFromZap(zap.New(core))
	closed := errors.New("channel/connection is not open")

	t.Run("ack", func(t *testing.T) {
		ack := &fakeAcknowledger{err: closed}
		c := NewPaymentConsumer(&fakeVerifier{}, log)
		c.Handle(context.Background(), delivery(ack, `{"transactionId":"trx-1"}`, false))

		assert.True(t, ack.rec.acked)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "Failed to ack payment event", entries[0].Message)
		assert.Equal(t, "trx-1", entries[0].ContextMap()["transactionID"])
	})

	t.Run("nack", func(t *testing.T) {
		ack := &fakeAcknowledger{err: closed}
		c := NewPaymentConsumer(&fakeVerifier{}, log)
		c.Handle(context.Background(), delivery(ack, `not json`, false))

		assert.True(t, ack.rec.nacked)
		assert.Equal(t, 1, logs.FilterMessage("Failed to nack payment event").Len())
	})
}
