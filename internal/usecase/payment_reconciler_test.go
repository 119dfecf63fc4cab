package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"booking-engine/internal/domain/entity"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) seedWithTransaction(resourceID uint, state entity.State, txID string) *entity.Booking {
	start := testNow.Add(24 * time.Hour)
	b := env.bookings.Seed(&entity.Booking{
		RenterID:      42,
		ResourceID:    resourceID,
		Period:        entity.Period{Start: start, End: start.Add(24 * time.Hour)},
		Pricing:       entity.Pricing{TotalPrice: decimal.NewFromInt(250), ResourcePrice: decimal.NewFromInt(250), FinalPrice: decimal.NewFromInt(250)},
		State:         state,
		TransactionID: &txID,
	})
	env.gateway.SetStatus(txID, "PENDING")
	return b
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.nextID = "trx-001"

	b, err := env.engine.Create(ctx, createInput(7, testNow.Add(time.Hour), testNow.Add(2*time.Hour)))
	require.NoError(t, err)

	tx, err := env.payments.CreateTransaction(ctx, b.ID, TransactionInput{Email: "renter@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "trx-001", tx.TransactionID)

	require.Len(t, env.gateway.created, 1)
	req := env.gateway.created[0]
	assert.Equal(t, "BOOKING-"+b.Number, req.InvoiceID)
	assert.Equal(t, int64(25000), req.Amount)
	assert.Equal(t, "https://booking.example/callback", req.CallbackURL)
	assert.Equal(t, "Booking "+b.Number, req.Description)

	stored, err := env.engine.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "trx-001", *stored.TransactionID)
	assert.Equal(t, entity.StatusPending, stored.Status())

	trail, err := env.engine.AuditTrail(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, entity.AuditTransactionLinked, trail[0].Action)
	assert.Equal(t, "trx-001", trail[0].Metadata["transactionId"])
}

func TestCreateTransactionRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("below minimum amount", func(t *testing.T) {
		in := createInput(7, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
		in.Pricing = entity.PriceInput{TotalPrice: price("5")}
		b, err := env.engine.Create(ctx, in)
		require.NoError(t, err)

		_, err = env.payments.CreateTransaction(ctx, b.ID, TransactionInput{})
		assert.ErrorIs(t, err, entity.ErrValidation)
		assert.Empty(t, env.gateway.created)
	})

	t.Run("not pending", func(t *testing.T) {
		b := env.seed(8, entity.Confirmed{}, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
		_, err := env.payments.CreateTransaction(ctx, b.ID, TransactionInput{})
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := env.payments.CreateTransaction(ctx, 999, TransactionInput{})
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		b := env.seed(9, entity.Pending{}, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
		env.gateway.err = &entity.UpstreamError{Service: "payment gateway", Err: errors.New("503")}
		defer func() { env.gateway.err = nil }()

		_, err := env.payments.CreateTransaction(ctx, b.ID, TransactionInput{})
		assert.ErrorIs(t, err, entity.ErrUpstreamUnavailable)

		stored, err := env.engine.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.TransactionID)
	})
}

func TestVerifyTransactionConfirmsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.seedWithTransaction(7, entity.Pending{}, "trx-100")

	res, err := env.payments.VerifyTransaction(ctx, "trx-100")
	require.NoError(t, err)
	assert.Equal(t, PaymentOutcomePending, res.Outcome)
	assert.Equal(t, entity.StatusPending, res.Booking.Status())

	env.gateway.SetStatus("trx-100", "SUCCESS")
	res, err = env.payments.VerifyTransaction(ctx, "trx-100")
	require.NoError(t, err)
	assert.Equal(t, PaymentOutcomeConfirmed, res.Outcome)
	assert.Equal(t, entity.StatusConfirmed, res.Booking.Status())
	assert.True(t, res.Booking.PaymentCompleted)

	res, err = env.payments.VerifyTransaction(ctx, "trx-100")
	require.NoError(t, err)
	assert.Equal(t, PaymentOutcomeAlreadyConfirmed, res.Outcome)

	stored, err := env.engine.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, []string{entity.TopicBookingConfirmed}, env.events.Topics())

	trail, err := env.audits.FindByBooking(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, string(ActionPaymentConfirm), trail[0].Action)
	assert.Equal(t, entity.ActorPayment, trail[0].Actor)
}

func TestVerifyTransactionNonSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, status := range []string{"FAILED", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			b := env.seedWithTransaction(7, entity.Pending{}, "trx-"+status)
			env.gateway.SetStatus("trx-"+status, status)

			res, err := env.payments.VerifyTransaction(ctx, "trx-"+status)
			require.NoError(t, err)
			assert.Equal(t, PaymentOutcomeFailed, res.Outcome)

			stored, err := env.engine.Get(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, entity.StatusPending, stored.Status())
			assert.False(t, stored.PaymentCompleted)
		})
	}
	assert.Empty(t, env.events.Topics())
}

func TestVerifyTransactionIgnoresUnpaidConfirmed(t *testing.T) {
	env := newTestEnv(t)
	b := env.seedWithTransaction(7, entity.Confirmed{}, "trx-200")
	env.gateway.SetStatus("trx-200", "SUCCESS")

	res, err := env.payments.VerifyTransaction(context.Background(), "trx-200")
	require.NoError(t, err)
	assert.Equal(t, PaymentOutcomeIgnored, res.Outcome)
	assert.False(t, res.Booking.PaymentCompleted)
	assert.Equal(t, b.Version, res.Booking.Version)
}

func TestVerifyTransactionUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.payments.VerifyTransaction(context.Background(), "trx-missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestVerifyTransactionConflictLeavesPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	paid := env.seedWithTransaction(7, entity.Pending{}, "trx-300")
	env.seed(7, entity.Confirmed{}, paid.Period.Start.Add(time.Hour), paid.Period.End.Add(time.Hour))
	env.gateway.SetStatus("trx-300", "SUCCESS")

	_, err := env.payments.VerifyTransaction(ctx, "trx-300")
	assert.ErrorIs(t, err, entity.ErrConflict)

	stored, err := env.engine.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status())
	assert.False(t, stored.PaymentCompleted)
}

func TestConcurrentVerificationsConfirmOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedWithTransaction(7, entity.Pending{}, "trx-400")
	env.gateway.SetStatus("trx-400", "SUCCESS")

	var wg sync.WaitGroup
	outcomes := make([]string, 2)
	errs := make([]error, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.payments.VerifyTransaction(ctx, "trx-400")
			errs[i] = err
			if res != nil {
				outcomes[i] = res.Outcome
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	sort.Strings(outcomes)
	assert.Equal(t, []string{PaymentOutcomeAlreadyConfirmed, PaymentOutcomeConfirmed}, outcomes)
	assert.Equal(t, []string{entity.TopicBookingConfirmed}, env.events.Topics())
}

func TestApplyVerifiedPayment(t *testing.T) {
	env := newTestEnv(t)
	env.seedWithTransaction(7, entity.Pending{}, "trx-500")

	b, err := env.payments.ApplyVerifiedPayment(context.Background(), "trx-500", entity.TransactionSuccess)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, b.Status())
	assert.True(t, b.PaymentCompleted)
}

func TestPaymentLinkAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.SetStatus("trx-600", "PENDING")

	link, err := env.payments.PaymentLink(ctx, "trx-600")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/trx-600", link.PaymentURL)

	tx, err := env.payments.TransactionStatus(ctx, "trx-600")
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionPending, tx.NormalizedStatus())

	_, err = env.payments.PaymentLink(ctx, " ")
	assert.ErrorIs(t, err, entity.ErrValidation)
	_, err = env.payments.TransactionStatus(ctx, "")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestTransactionForBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	linked := env.seedWithTransaction(7, entity.Pending{}, "trx-700")
	env.gateway.SetStatus("trx-700", "PAID")

	tx, err := env.payments.TransactionForBooking(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "trx-700", tx.TransactionID)
	assert.Equal(t, entity.TransactionSuccess, tx.NormalizedStatus())

	b, err := env.engine.Get(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, b.Status())

	unlinked := env.seed(8, entity.Pending{}, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
	_, err = env.payments.TransactionForBooking(ctx, unlinked.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.payments.TransactionForBooking(ctx, 999)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
