package usecase

import (
	"testing"
	"time"

	"booking-engine/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookingIn(state entity.State, start, end time.Time) *entity.Booking {
	return &entity.Booking{ID: 1, Number: "BK-00000001", ResourceID: 9, Period: entity.Period{Start: start, End: end}, State: state, Version: 3}
}

func TestTransitionTable(t *testing.T) {
	start := testNow.Add(-2 * time.Hour)
	end := testNow.Add(-time.Hour)
	states := map[entity.BookingStatus]entity.State{
		entity.StatusPending:   entity.Pending{},
		entity.StatusConfirmed: entity.Confirmed{},
		entity.StatusOngoing:   entity.Ongoing{StartedAt: start},
		entity.StatusCompleted: entity.Completed{StartedAt: start, EndedAt: end},
		entity.StatusCancelled: entity.Cancelled{Reason: "x", CancelledAt: end},
		entity.StatusRejected:  entity.Rejected{Reason: "x", RejectedAt: end},
	}
	expected := map[Action]entity.BookingStatus{
		ActionConfirm:        entity.StatusConfirmed,
		ActionPaymentConfirm: entity.StatusConfirmed,
		ActionStart:          entity.StatusOngoing,
		ActionComplete:       entity.StatusCompleted,
		ActionAutoComplete:   entity.StatusCompleted,
		ActionCancel:         entity.StatusCancelled,
		ActionReject:         entity.StatusRejected,
		ActionExpire:         entity.StatusCancelled,
	}

	for action, to := range expected {
		for from, state := range states {
			b := bookingIn(state, start, end)
			res, err := ApplyTransition(b, Command{Action: action, Now: testNow})
			if containsStatus(AllowedSources(action), from) {
				require.NoError(t, err, "%s from %s", action, from)
				assert.Equal(t, to, res.Booking.Status(), "%s from %s", action, from)
				assert.Equal(t, from, res.From)
				assert.Equal(t, from, b.Status(), "input booking must not change")
			} else {
				var ise *entity.InvalidStateError
				require.ErrorAs(t, err, &ise, "%s from %s", action, from)
				assert.Equal(t, from, ise.Current)
				assert.Equal(t, AllowedSources(action), ise.Allowed)
			}
		}
	}
}

func TestStartRecordsActualStart(t *testing.T) {
	b := bookingIn(entity.Confirmed{}, testNow, testNow.Add(time.Hour))
	res, err := ApplyTransition(b, Command{Action: ActionStart, Now: testNow})
	require.NoError(t, err)

	require.NotNil(t, res.Booking.ActualStart())
	assert.Equal(t, testNow, *res.Booking.ActualStart())
	assert.Equal(t, entity.ResourceInUse, res.ResourceStatus)
	assert.Empty(t, res.Topic)
}

func TestCompleteKeepsActualStart(t *testing.T) {
	started := testNow.Add(-3 * time.Hour)
	b := bookingIn(entity.Ongoing{StartedAt: started}, started, testNow.Add(time.Hour))

	res, err := ApplyTransition(b, Command{Action: ActionComplete, Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, started, *res.Booking.ActualStart())
	assert.Equal(t, testNow, *res.Booking.ActualEnd())
	assert.Equal(t, entity.ResourceAvailable, res.ResourceStatus)
	assert.Equal(t, entity.TopicBookingCompleted, res.Topic)
}

func TestConfirmRequiresNoConflict(t *testing.T) {
	b := bookingIn(entity.Pending{}, testNow.Add(time.Hour), testNow.Add(2*time.Hour))

	res, err := ApplyTransition(b, Command{Action: ActionConfirm, Now: testNow})
	require.NoError(t, err)
	assert.True(t, res.RequireNoConflict)
	assert.False(t, res.Booking.PaymentCompleted)

	res, err = ApplyTransition(b, Command{Action: ActionPaymentConfirm, Now: testNow})
	require.NoError(t, err)
	assert.True(t, res.RequireNoConflict)
	assert.True(t, res.Booking.PaymentCompleted)
	assert.Equal(t, entity.TopicBookingConfirmed, res.Topic)
}

func TestCancelReasonDefaults(t *testing.T) {
	b := bookingIn(entity.Pending{}, testNow.Add(time.Hour), testNow.Add(2*time.Hour))

	res, err := ApplyTransition(b, Command{Action: ActionCancel, Reason: "  ", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, "Cancelled by user", *res.Booking.CancellationReason())
	assert.Equal(t, testNow, *res.Booking.CancelledAt())

	res, err = ApplyTransition(b, Command{Action: ActionCancel, Reason: "Flight delayed", Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, "Flight delayed", *res.Booking.CancellationReason())
}

func TestExpireGuardsAndReasons(t *testing.T) {
	future := bookingIn(entity.Pending{}, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	_, err := ApplyTransition(future, Command{Action: ActionExpire, Now: testNow})
	assert.ErrorIs(t, err, entity.ErrValidation)

	endsNow := bookingIn(entity.Pending{}, testNow.Add(-time.Hour), testNow)
	res, err := ApplyTransition(endsNow, Command{Action: ActionExpire, Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ReasonExpiredUnpaid, *res.Booking.CancellationReason())

	confirmed := bookingIn(entity.Confirmed{}, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	res, err = ApplyTransition(confirmed, Command{Action: ActionExpire, Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, ReasonExpiredUnstarted, *res.Booking.CancellationReason())
	assert.Equal(t, entity.TopicBookingCancelled, res.Topic)
}

func TestAutoCompleteRequiresEndPassed(t *testing.T) {
	b := bookingIn(entity.Ongoing{StartedAt: testNow.Add(-time.Hour)}, testNow.Add(-time.Hour), testNow.Add(time.Minute))
	_, err := ApplyTransition(b, Command{Action: ActionAutoComplete, Now: testNow})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestCorrectCompletion(t *testing.T) {
	start := testNow.Add(-5 * time.Hour)
	end := testNow.Add(-time.Hour)

	paid := bookingIn(entity.Cancelled{Reason: ReasonExpiredUnstarted, CancelledAt: end}, start, end)
	paid.PaymentCompleted = true
	res, err := ApplyTransition(paid, Command{Action: ActionCorrectCompletion, Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, res.Booking.Status())
	assert.Equal(t, start, *res.Booking.ActualStart())
	assert.Equal(t, end, *res.Booking.ActualEnd())
	assert.Nil(t, res.Booking.CancellationReason())

	unpaid := bookingIn(entity.Cancelled{Reason: ReasonExpiredUnpaid, CancelledAt: end}, start, end)
	_, err = ApplyTransition(unpaid, Command{Action: ActionCorrectCompletion, Now: testNow})
	assert.ErrorIs(t, err, entity.ErrValidation)

	notEnded := bookingIn(entity.Cancelled{Reason: "x", CancelledAt: testNow}, start, testNow.Add(time.Hour))
	notEnded.PaymentCompleted = true
	_, err = ApplyTransition(notEnded, Command{Action: ActionCorrectCompletion, Now: testNow})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestUnknownAction(t *testing.T) {
	_, err := ApplyTransition(bookingIn(entity.Pending{}, testNow, testNow.Add(time.Hour)), Command{Action: "teleport", Now: testNow})
	assert.ErrorIs(t, err, entity.ErrValidation)
}
