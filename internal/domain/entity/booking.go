package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingNumberPrefix starts every human-facing booking number
const BookingNumberPrefix = "BK-"

// Period is a half-open scheduled interval [Start, End)
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod validates that end is strictly after start
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, &ValidationError{Field: "period", Message: "start and end are required"}
	}
	if !end.After(start) {
		return Period{}, &ValidationError{Field: "period", Message: "end must be after start"}
	}
	return Period{Start: start, End: end}, nil
}

// Overlaps applies the half-open overlap rule; touching intervals do not overlap
func (p Period) Overlaps(start, end time.Time) bool {
	return p.Start.Before(end) && p.End.After(start)
}

// EndedBy reports whether the scheduled end is at or before now
func (p Period) EndedBy(now time.Time) bool {
	return !p.End.After(now)
}

// Location is a pickup or drop-off point
type Location struct {
	Address   string
	Latitude  *float64
	Longitude *float64
}

// Booking is a reservation of a resource by a renter for a period
type Booking struct {
	ID               uint
	Number           string
	RenterID         uint
	ResourceID       uint
	OperatorID       *uint
	WithOperator     bool
	Period           Period
	Pickup           Location
	Dropoff          Location
	SpecialRequests  string
	Notes            string
	Pricing          Pricing
	State            State
	PaymentCompleted bool
	TransactionID    *string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewBookingNumber returns BK- followed by 8 upper-case hex characters
func NewBookingNumber() string {
	return BookingNumberPrefix + strings.ToUpper(uuid.NewString()[:8])
}

// Status derives the status from the current state variant
func (b *Booking) Status() BookingStatus {
	if b.State == nil {
		return StatusPending
	}
	return b.State.Status()
}

// ActualStart is set once the rental has started
func (b *Booking) ActualStart() *time.Time {
	switch s := b.State.(type) {
	case Ongoing:
		return timePtr(s.StartedAt)
	case Completed:
		return timePtr(s.StartedAt)
	}
	return nil
}

// ActualEnd is set only for completed bookings
func (b *Booking) ActualEnd() *time.Time {
	if s, ok := b.State.(Completed); ok {
		return timePtr(s.EndedAt)
	}
	return nil
}

func (b *Booking) CancellationReason() *string {
	switch s := b.State.(type) {
	case Cancelled:
		return stringPtr(s.Reason)
	case Rejected:
		return stringPtr(s.Reason)
	}
	return nil
}

func (b *Booking) CancelledAt() *time.Time {
	switch s := b.State.(type) {
	case Cancelled:
		return timePtr(s.CancelledAt)
	case Rejected:
		return timePtr(s.RejectedAt)
	}
	return nil
}

// InvoiceID is the payment gateway invoice reference for this booking
func (b *Booking) InvoiceID() string {
	return "BOOKING-" + b.Number
}

// Clone returns a deep copy safe to mutate independently
func (b *Booking) Clone() *Booking {
	c := *b
	if b.OperatorID != nil {
		id := *b.OperatorID
		c.OperatorID = &id
	}
	if b.TransactionID != nil {
		tx := *b.TransactionID
		c.TransactionID = &tx
	}
	c.Pickup = b.Pickup.clone()
	c.Dropoff = b.Dropoff.clone()
	return &c
}

func (l Location) clone() Location {
	c := l
	if l.Latitude != nil {
		v := *l.Latitude
		c.Latitude = &v
	}
	if l.Longitude != nil {
		v := *l.Longitude
		c.Longitude = &v
	}
	return c
}
