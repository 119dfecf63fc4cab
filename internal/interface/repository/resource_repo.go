package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
)

// HTTPResourceRepository updates resource availability on the vehicle service
type HTTPResourceRepository struct {
	logger  logger.Logger
	baseURL string
	client  *http.Client
}

// NewHTTPResourceRepository creates a resource repository. client should carry
// the service credentials and a short timeout.
func NewHTTPResourceRepository(baseURL string, client *http.Client, logger logger.Logger) repository.ResourceRepository {
	return &HTTPResourceRepository{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// UpdateStatus sets the resource's availability flag
func (r *HTTPResourceRepository) UpdateStatus(ctx context.Context, resourceID uint, status entity.ResourceStatus) error {
	endpoint := fmt.Sprintf("%s/api/vehicles/%d/status?status=%s", r.baseURL, resourceID, url.QueryEscape(string(status)))
	if err := doJSON(ctx, r.client, "resource service", http.MethodPatch, endpoint, nil, nil, "", ""); err != nil {
		return err
	}

	r.logger.Debug("Resource status updated",
		"resourceID", resourceID,
		"status", status)
	return nil
}
