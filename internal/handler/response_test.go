package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/repository"
	"courier/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load delivery: %w", repository.ErrNotFound), http.StatusNotFound},
		{"validation", domain.NewValidationError("pickup_lat", "out of range"), http.StatusBadRequest},
		{"invalid rating", service.ErrInvalidRating, http.StatusBadRequest},
		{"illegal transition", &domain.InvalidTransitionError{From: domain.DeliveryStatusPending, To: domain.DeliveryStatusCompleted}, http.StatusConflict},
		{"delivery taken", service.ErrDeliveryUnavailable, http.StatusConflict},
		{"driver busy", service.ErrDriverUnavailable, http.StatusConflict},
		{"wrong driver", service.ErrNotDeliveryDriver, http.StatusForbidden},
		{"wrong rider", service.ErrNotDeliveryRider, http.StatusForbidden},
		{"store down", &domain.DependencyUnavailableError{Dependency: "store", Err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Errorf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRespondErrorMasksDependencyDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondError(c, &domain.DependencyUnavailableError{Dependency: "redis", Err: errors.New("dial tcp 10.0.0.5:6379")})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if strings.Contains(resp.Error, "redis") || strings.Contains(resp.Error, "10.0.0.5") {
		t.Errorf("dependency detail leaked to client: %q", resp.Error)
	}
}
