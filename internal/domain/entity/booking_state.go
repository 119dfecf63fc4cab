package entity

import (
	"fmt"
	"time"
)

// BookingStatus is the persisted lifecycle status of a booking
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusOngoing   BookingStatus = "ONGOING"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusRejected  BookingStatus = "REJECTED"
)

// BlockingStatuses hold a resource for their whole period.
var BlockingStatuses = []BookingStatus{StatusConfirmed, StatusOngoing}

// IsTerminal reports whether no further lifecycle transition leaves this status
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Blocks reports whether a booking in this status makes its resource unavailable
func (s BookingStatus) Blocks() bool {
	return s == StatusConfirmed || s == StatusOngoing
}

// ParseBookingStatus validates a raw status string
func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(raw)
	switch s {
	case StatusPending, StatusConfirmed, StatusOngoing, StatusCompleted, StatusCancelled, StatusRejected:
		return s, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown booking status %q", raw)}
}

// State is the lifecycle state of a booking. Each variant carries exactly
// the data valid for its status, so derived fields cannot disagree with it.
type State interface {
	Status() BookingStatus
	isState()
}

// Pending is a booking awaiting confirmation or payment
type Pending struct{}

// Confirmed is a booking that holds its resource but has not started
type Confirmed struct{}

// Ongoing is a started rental
type Ongoing struct {
	StartedAt time.Time
}

// Completed is a finished rental
type Completed struct {
	StartedAt time.Time
	EndedAt   time.Time
}

// Cancelled is a booking withdrawn by a user or expired by the reconciler
type Cancelled struct {
	Reason      string
	CancelledAt time.Time
}

// Rejected is a booking declined before confirmation
type Rejected struct {
	Reason     string
	RejectedAt time.Time
}

func (Pending) Status() BookingStatus   { return StatusPending }
func (Confirmed) Status() BookingStatus { return StatusConfirmed }
func (Ongoing) Status() BookingStatus   { return StatusOngoing }
func (Completed) Status() BookingStatus { return StatusCompleted }
func (Cancelled) Status() BookingStatus { return StatusCancelled }
func (Rejected) Status() BookingStatus  { return StatusRejected }

func (Pending) isState()   {}
func (Confirmed) isState() {}
func (Ongoing) isState()   {}
func (Completed) isState() {}
func (Cancelled) isState() {}
func (Rejected) isState()  {}

// StateColumns is the flattened form of a State used by persistence adapters
type StateColumns struct {
	Status             BookingStatus
	ActualStart        *time.Time
	ActualEnd          *time.Time
	CancellationReason *string
	CancelledAt        *time.Time
}

// FlattenState converts a State into nullable columns
func FlattenState(s State) StateColumns {
	cols := StateColumns{Status: s.Status()}
	switch v := s.(type) {
	case Ongoing:
		cols.ActualStart = timePtr(v.StartedAt)
	case Completed:
		cols.ActualStart = timePtr(v.StartedAt)
		cols.ActualEnd = timePtr(v.EndedAt)
	case Cancelled:
		cols.CancellationReason = stringPtr(v.Reason)
		cols.CancelledAt = timePtr(v.CancelledAt)
	case Rejected:
		cols.CancellationReason = stringPtr(v.Reason)
		cols.CancelledAt = timePtr(v.RejectedAt)
	}
	return cols
}

// StateFromColumns rebuilds a State and rejects column sets that contradict their status
func StateFromColumns(cols StateColumns) (State, error) {
	switch cols.Status {
	case StatusPending:
		return Pending{}, nil
	case StatusConfirmed:
		return Confirmed{}, nil
	case StatusOngoing:
		if cols.ActualStart == nil {
			return nil, fmt.Errorf("ongoing booking without actual start")
		}
		return Ongoing{StartedAt: *cols.ActualStart}, nil
	case StatusCompleted:
		if cols.ActualEnd == nil {
			return nil, fmt.Errorf("completed booking without actual end")
		}
		start := *cols.ActualEnd
		if cols.ActualStart != nil {
			start = *cols.ActualStart
		}
		return Completed{StartedAt: start, EndedAt: *cols.ActualEnd}, nil
	case StatusCancelled:
		if cols.CancellationReason == nil || cols.CancelledAt == nil {
			return nil, fmt.Errorf("cancelled booking without reason or timestamp")
		}
		return Cancelled{Reason: *cols.CancellationReason, CancelledAt: *cols.CancelledAt}, nil
	case StatusRejected:
		if cols.CancellationReason == nil || cols.CancelledAt == nil {
			return nil, fmt.Errorf("rejected booking without reason or timestamp")
		}
		return Rejected{Reason: *cols.CancellationReason, RejectedAt: *cols.CancelledAt}, nil
	}
	return nil, fmt.Errorf("unknown booking status %q", cols.Status)
}

func timePtr(t time.Time) *time.Time { return &t }

func stringPtr(s string) *string { return &s }
