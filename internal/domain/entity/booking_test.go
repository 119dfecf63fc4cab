package entity

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodOverlapsIsHalfOpen(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := Period{Start: base.Add(10 * time.Hour), End: base.Add(12 * time.Hour)}

	assert.True(t, p.Overlaps(base.Add(11*time.Hour), base.Add(13*time.Hour)))
	assert.True(t, p.Overlaps(base.Add(9*time.Hour), base.Add(13*time.Hour)))
	assert.True(t, p.Overlaps(base.Add(10*time.Hour+30*time.Minute), base.Add(11*time.Hour)))
	assert.False(t, p.Overlaps(base.Add(12*time.Hour), base.Add(14*time.Hour)), "touching at end")
	assert.False(t, p.Overlaps(base.Add(8*time.Hour), base.Add(10*time.Hour)), "touching at start")
}

func TestNewPeriod(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := NewPeriod(start, start)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewPeriod(start, start.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewPeriod(time.Time{}, start)
	assert.ErrorIs(t, err, ErrValidation)

	p, err := NewPeriod(start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, p.EndedBy(start.Add(time.Hour)))
	assert.False(t, p.EndedBy(start.Add(59*time.Minute)))
}

func TestNewBookingNumber(t *testing.T) {
	re := regexp.MustCompile(`^BK-[0-9A-F]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := NewBookingNumber()
		assert.Regexp(t, re, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestCloneIsIndependent(t *testing.T) {
	op := uint(7)
	tx := "TX-1"
	lat := 1.5
	b := &Booking{ID: 1, OperatorID: &op, TransactionID: &tx, Pickup: Location{Address: "A", Latitude: &lat}}

	c := b.Clone()
	*c.OperatorID = 8
	*c.TransactionID = "TX-2"
	*c.Pickup.Latitude = 2.5

	assert.Equal(t, uint(7), *b.OperatorID)
	assert.Equal(t, "TX-1", *b.TransactionID)
	assert.Equal(t, 1.5, *b.Pickup.Latitude)
}

func TestInvoiceID(t *testing.T) {
	b := &Booking{Number: "BK-0A1B2C3D"}
	assert.Equal(t, "BOOKING-BK-0A1B2C3D", b.InvoiceID())
}

func TestNewBookingEventCarriesReason(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := &Booking{
		ID:      3,
		Number:  "BK-00000003",
		Pricing: Pricing{FinalPrice: decimal.RequireFromString("150.5")},
		State:   Cancelled{Reason: "Expired - rental period ended", CancelledAt: at},
	}

	evt := NewBookingEvent(TopicBookingCancelled, b, at)
	assert.Equal(t, TopicBookingCancelled, evt.Event)
	assert.Equal(t, "CANCELLED", evt.Status)
	assert.Equal(t, "Expired - rental period ended", evt.Reason)
	assert.Equal(t, "150.50", evt.FinalPrice)
}
