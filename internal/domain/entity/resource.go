package entity

import "time"

// ResourceStatus is the availability flag kept by the resource service.
// It is informational only and never consulted for conflict detection.
type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "AVAILABLE"
	ResourceBooked    ResourceStatus = "BOOKED"
	ResourceInUse     ResourceStatus = "IN_USE"
)

// Event topics published on the event sink
const (
	TopicBookingCreated   = "booking.created"
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCompleted = "booking.completed"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingRejected  = "booking.rejected"
)

// BookingEvent is the payload published for lifecycle events
type BookingEvent struct {
	Event         string    `json:"event"`
	Version       int       `json:"version"`
	BookingID     uint      `json:"bookingId"`
	BookingNumber string    `json:"bookingNumber"`
	RenterID      uint      `json:"renterId"`
	ResourceID    uint      `json:"resourceId"`
	OperatorID    *uint     `json:"operatorId,omitempty"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	StartAt       time.Time `json:"startAt"`
	EndAt         time.Time `json:"endAt"`
	FinalPrice    string    `json:"finalPrice"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// NewBookingEvent snapshots a booking for publication
func NewBookingEvent(topic string, b *Booking, now time.Time) BookingEvent {
	evt := BookingEvent{
		Event:         topic,
		Version:       1,
		BookingID:     b.ID,
		BookingNumber: b.Number,
		RenterID:      b.RenterID,
		ResourceID:    b.ResourceID,
		OperatorID:    b.OperatorID,
		Status:        string(b.Status()),
		StartAt:       b.Period.Start,
		EndAt:         b.Period.End,
		FinalPrice:    b.Pricing.FinalPrice.StringFixed(2),
		OccurredAt:    now,
	}
	if r := b.CancellationReason(); r != nil {
		evt.Reason = *r
	}
	return evt
}

// PriceQuoteRequest asks the pricing service for a quote
type PriceQuoteRequest struct {
	ResourceID   uint
	OperatorID   *uint
	WithOperator bool
	Start        time.Time
	End          time.Time
}
