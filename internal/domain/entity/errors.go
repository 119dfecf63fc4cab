package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("resource already booked for the requested period")
	ErrInvalidState        = errors.New("transition not permitted from current status")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("booking was modified concurrently")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrDuplicateKey is returned by stores when a unique key is already taken
	ErrDuplicateKey = errors.New("duplicate key")
)

// ValidationError reports malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports an overlapping CONFIRMED or ONGOING booking for the same resource
type ConflictError struct {
	ResourceID uint
	Start      time.Time
	End        time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %d is already booked between %s and %s",
		e.ResourceID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidStateError names the current status and the statuses the action accepts
type InvalidStateError struct {
	Action  string
	Current BookingStatus
	Allowed []BookingStatus
}

func (e *InvalidStateError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot %s booking in status %s; allowed from: %s",
		e.Action, e.Current, strings.Join(allowed, ", "))
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError reports an unknown booking or transaction reference
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConcurrencyConflictError is returned when a versioned write could not be
// resolved by reloading. Callers may retry the whole command.
type ConcurrencyConflictError struct {
	BookingID uint
	Attempts  int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("booking %d was modified concurrently after %d attempts", e.BookingID, e.Attempts)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// Retryable is always true; the command may be resubmitted as-is.
func (e *ConcurrencyConflictError) Retryable() bool { return true }

// UpstreamError wraps a failure of a collaborator (store, resource service, gateway, broker)
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }
