package repository

import (
	"context"

	"booking-engine/internal/domain/entity"
)

// ResourceRepository defines the interface for the resource (vehicle) service
type ResourceRepository interface {
	UpdateStatus(ctx context.Context, resourceID uint, status entity.ResourceStatus) error
}
