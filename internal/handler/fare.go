package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/service"
)

// FareHandler handles HTTP requests for fare quotes.
type FareHandler struct {
	fares *service.FareEngine
}

// NewFareHandler creates a new FareHandler.
func NewFareHandler(fares *service.FareEngine) *FareHandler {
	return &FareHandler{fares: fares}
}

// QuoteFareRequest is the HTTP request body for a fare quote.
type QuoteFareRequest struct {
	PickupLat     float64        `json:"pickup_lat"`
	PickupLng     float64        `json:"pickup_lng"`
	DropoffLat    float64        `json:"dropoff_lat"`
	DropoffLng    float64        `json:"dropoff_lng"`
	Package       PackageRequest `json:"package"`
	VehicleClass  string         `json:"vehicle_class,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
}

// QuoteFare handles POST /v1/fares/quote
func (h *FareHandler) QuoteFare(c *gin.Context) {
	var req QuoteFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	paymentMethod, err := service.ValidatePaymentMethod(req.PaymentMethod)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	class := domain.VehicleClass(req.VehicleClass)
	if class == "" {
		class = domain.VehicleClassBike
	}

	quote, err := h.fares.Estimate(
		geo.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		geo.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		class,
		domain.Package{
			WeightKg:        req.Package.WeightKg,
			LengthCm:        req.Package.LengthCm,
			WidthCm:         req.Package.WidthCm,
			HeightCm:        req.Package.HeightCm,
			Fragile:         req.Package.Fragile,
			SpecialHandling: req.Package.SpecialHandling,
		},
		paymentMethod,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, quote)
}
