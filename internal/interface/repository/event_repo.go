package repository

import (
	"context"
	"fmt"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
)

// JSONPublisher is the subset of the message broker client the event repository needs
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BrokerEventRepository publishes lifecycle events with the topic as routing key
type BrokerEventRepository struct {
	publisher JSONPublisher
	logger    logger.Logger
}

// NewBrokerEventRepository creates an event repository backed by a message broker
func NewBrokerEventRepository(publisher JSONPublisher, logger logger.Logger) repository.EventRepository {
	return &BrokerEventRepository{publisher: publisher, logger: logger}
}

// Publish sends payload under topic
func (r *BrokerEventRepository) Publish(ctx context.Context, topic string, payload any) error {
	if err := r.publisher.PublishJSON(ctx, topic, payload); err != nil {
		return &entity.UpstreamError{Service: "event broker", Err: fmt.Errorf("failed to publish %s: %w", topic, err)}
	}
	r.logger.Debug("Event published", "topic", topic)
	return nil
}

// LogEventRepository writes events to the log; used when no broker is configured
type LogEventRepository struct {
	logger logger.Logger
}

// NewLogEventRepository creates an event repository that only logs
func NewLogEventRepository(logger logger.Logger) repository.EventRepository {
	return &LogEventRepository{logger: logger}
}

// Publish logs the event
func (r *LogEventRepository) Publish(ctx context.Context, topic string, payload any) error {
	r.logger.Info("Event", "topic", topic, "payload", payload)
	return nil
}
