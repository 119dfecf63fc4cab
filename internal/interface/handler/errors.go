package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/usecase"
	"booking-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Error codes returned in the "code" field
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeBookingConflict     = "BOOKING_CONFLICT"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeSweepInProgress     = "SWEEP_IN_PROGRESS"
	CodeUpstream            = "UPSTREAM_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, log logger.Logger, err error) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeValidation})
	case errors.Is(err, entity.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": CodeNotFound})
	case errors.Is(err, entity.ErrConcurrencyConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeConcurrencyConflict, "retryable": true})
	case errors.Is(err, entity.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeInvalidStatus})
	case errors.Is(err, entity.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeBookingConflict})
	case errors.Is(err, usecase.ErrSweepInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error(), "code": CodeSweepInProgress})
	case errors.Is(err, entity.ErrUpstreamUnavailable):
		log.Warn("Upstream unavailable", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": CodeUpstream})
	default:
		log.Error("Unhandled error", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": CodeInternal})
	}
}

// respondBindError reports malformed or invalid request input
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": strings.Join(msgs, "; "), "code": CodeValidation})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeValidation})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email", "url", "booking_number":
		return fmt.Sprintf("%s is not a valid %s", fe.Field(), fe.Tag())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", fe.Field())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
