package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/repository"
	"courier/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)

	resp := ErrorResponse{Error: err.Error()}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	var dep *domain.DependencyUnavailableError
	if errors.As(err, &dep) {
		// Never leak dependency internals to clients.
		resp.Error = "service temporarily unavailable"
	}
	if code == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}

	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	var validation *domain.ValidationError
	var transition *domain.InvalidTransitionError
	var dep *domain.DependencyUnavailableError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	case errors.As(err, &validation),
		errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidDeliveryID),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidRating):
		return http.StatusBadRequest

	case errors.As(err, &transition),
		errors.Is(err, service.ErrDeliveryUnavailable),
		errors.Is(err, service.ErrDriverUnavailable):
		return http.StatusConflict

	case errors.Is(err, service.ErrNotDeliveryDriver),
		errors.Is(err, service.ErrNotDeliveryRider):
		return http.StatusForbidden

	case errors.As(err, &dep):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
