package usecase

import (
	"strings"
	"time"

	"booking-engine/internal/domain/entity"
)

// Action names a lifecycle command
type Action string

const (
	ActionConfirm           Action = "confirm"
	ActionPaymentConfirm    Action = "payment_confirm"
	ActionStart             Action = "start"
	ActionComplete          Action = "complete"
	ActionCancel            Action = "cancel"
	ActionReject            Action = "reject"
	ActionExpire            Action = "expire"
	ActionAutoComplete      Action = "auto_complete"
	ActionCorrectCompletion Action = "correct_completion"
	// ActionLinkTransaction stores a gateway reference without a status change
	ActionLinkTransaction Action = "link_transaction"
)

// Cancellation reasons written by the reconciler
const (
	ReasonExpiredUnstarted = "Expired - rental period ended without start"
	ReasonExpiredUnpaid    = "Expired - rental period ended"
	defaultCancelReason    = "Cancelled by user"
	defaultRejectReason    = "Rejected by operator"
)

// allowedSources is the transition table keyed by action
var allowedSources = map[Action][]entity.BookingStatus{
	ActionConfirm:           {entity.StatusPending},
	ActionPaymentConfirm:    {entity.StatusPending},
	ActionStart:             {entity.StatusConfirmed},
	ActionComplete:          {entity.StatusOngoing},
	ActionCancel:            {entity.StatusPending, entity.StatusConfirmed},
	ActionReject:            {entity.StatusPending},
	ActionExpire:            {entity.StatusPending, entity.StatusConfirmed},
	ActionAutoComplete:      {entity.StatusOngoing},
	ActionCorrectCompletion: {entity.StatusCancelled},
}

// Command is one lifecycle command evaluated at Now
type Command struct {
	Action Action
	Reason string
	Now    time.Time
}

// TransitionResult is the uncommitted outcome of a command
type TransitionResult struct {
	Action  Action
	From    entity.BookingStatus
	Booking *entity.Booking
	// ResourceStatus is the status to push to the resource service, empty when unchanged
	ResourceStatus entity.ResourceStatus
	// Topic is the lifecycle event to publish, empty when none
	Topic string
	// RequireNoConflict asks the store to re-check overlap atomically with the write
	RequireNoConflict bool
	Reason            string
}

// AllowedSources returns the statuses an action may start from
func AllowedSources(a Action) []entity.BookingStatus {
	return allowedSources[a]
}

// ApplyTransition evaluates cmd against b without side effects. b is not
// modified; the returned booking carries the next state.
func ApplyTransition(b *entity.Booking, cmd Command) (*TransitionResult, error) {
	allowed, ok := allowedSources[cmd.Action]
	if !ok {
		return nil, &entity.ValidationError{Field: "action", Message: "unknown action " + string(cmd.Action)}
	}
	from := b.Status()
	if !containsStatus(allowed, from) {
		return nil, &entity.InvalidStateError{Action: string(cmd.Action), Current: from, Allowed: allowed}
	}

	next := b.Clone()
	res := &TransitionResult{Action: cmd.Action, From: from, Booking: next}

	switch cmd.Action {
	case ActionConfirm:
		next.State = entity.Confirmed{}
		res.Topic = entity.TopicBookingConfirmed
		res.RequireNoConflict = true

	case ActionPaymentConfirm:
		next.State = entity.Confirmed{}
		next.PaymentCompleted = true
		res.Topic = entity.TopicBookingConfirmed
		res.RequireNoConflict = true

	case ActionStart:
		next.State = entity.Ongoing{StartedAt: cmd.Now}
		res.ResourceStatus = entity.ResourceInUse

	case ActionComplete, ActionAutoComplete:
		if cmd.Action == ActionAutoComplete && !b.Period.EndedBy(cmd.Now) {
			return nil, notEndedError()
		}
		started := cmd.Now
		if s := b.ActualStart(); s != nil {
			started = *s
		}
		next.State = entity.Completed{StartedAt: started, EndedAt: cmd.Now}
		res.ResourceStatus = entity.ResourceAvailable
		res.Topic = entity.TopicBookingCompleted

	case ActionCancel:
		res.Reason = reasonOr(cmd.Reason, defaultCancelReason)
		next.State = entity.Cancelled{Reason: res.Reason, CancelledAt: cmd.Now}
		res.ResourceStatus = entity.ResourceAvailable
		res.Topic = entity.TopicBookingCancelled

	case ActionReject:
		res.Reason = reasonOr(cmd.Reason, defaultRejectReason)
		next.State = entity.Rejected{Reason: res.Reason, RejectedAt: cmd.Now}
		res.ResourceStatus = entity.ResourceAvailable
		res.Topic = entity.TopicBookingRejected

	case ActionExpire:
		if !b.Period.EndedBy(cmd.Now) {
			return nil, notEndedError()
		}
		res.Reason = ReasonExpiredUnpaid
		if from == entity.StatusConfirmed {
			res.Reason = ReasonExpiredUnstarted
		}
		next.State = entity.Cancelled{Reason: res.Reason, CancelledAt: cmd.Now}
		res.ResourceStatus = entity.ResourceAvailable
		res.Topic = entity.TopicBookingCancelled

	case ActionCorrectCompletion:
		if !b.PaymentCompleted {
			return nil, &entity.ValidationError{Field: "paymentCompleted", Message: "only paid bookings can be corrected to completed"}
		}
		if !b.Period.EndedBy(cmd.Now) {
			return nil, notEndedError()
		}
		next.State = entity.Completed{StartedAt: b.Period.Start, EndedAt: b.Period.End}
		res.Reason = cmd.Reason
		res.ResourceStatus = entity.ResourceAvailable
		res.Topic = entity.TopicBookingCompleted
	}

	return res, nil
}

func notEndedError() error {
	return &entity.ValidationError{Field: "end", Message: "scheduled end has not passed"}
}

func reasonOr(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}

func containsStatus(list []entity.BookingStatus, s entity.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
