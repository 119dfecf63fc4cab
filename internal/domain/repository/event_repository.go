package repository

import "context"

// EventRepository defines the interface for publishing lifecycle events
type EventRepository interface {
	Publish(ctx context.Context, topic string, payload any) error
}
