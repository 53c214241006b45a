package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/service"
)

// DeliveryHandler handles HTTP requests for deliveries.
type DeliveryHandler struct {
	deliveryService *service.DeliveryService
	trackingService *service.TrackingService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(deliveryService *service.DeliveryService, trackingService *service.TrackingService) *DeliveryHandler {
	return &DeliveryHandler{
		deliveryService: deliveryService,
		trackingService: trackingService,
	}
}

// PackageRequest is the package description in a delivery request.
type PackageRequest struct {
	WeightKg        float64 `json:"weight_kg"`
	LengthCm        float64 `json:"length_cm"`
	WidthCm         float64 `json:"width_cm"`
	HeightCm        float64 `json:"height_cm"`
	Fragile         bool    `json:"fragile"`
	SpecialHandling bool    `json:"special_handling"`
}

// CreateDeliveryRequest is the HTTP request body for creating a delivery.
type CreateDeliveryRequest struct {
	RiderID        string         `json:"rider_id"`
	PickupLat      float64        `json:"pickup_lat"`
	PickupLng      float64        `json:"pickup_lng"`
	PickupAddress  string         `json:"pickup_address"`
	DropoffLat     float64        `json:"dropoff_lat"`
	DropoffLng     float64        `json:"dropoff_lng"`
	DropoffAddress string         `json:"dropoff_address"`
	Package        PackageRequest `json:"package"`
	VehicleClass   string         `json:"vehicle_class,omitempty"`
	PaymentMethod  string         `json:"payment_method,omitempty"` // CASH, CARD, WALLET, TRANSFER
}

// UpdateStatusRequest is the HTTP request body for a status transition.
type UpdateStatusRequest struct {
	Status           string `json:"status"`
	ActorID          string `json:"actor_id"`
	DriverID         string `json:"driver_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	PickupConfirmed  bool   `json:"pickup_confirmed,omitempty"`
	PaymentConfirmed bool   `json:"payment_confirmed,omitempty"`
}

// CancelDeliveryRequest is the HTTP request body for cancelling a delivery.
type CancelDeliveryRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

// RateDeliveryRequest is the HTTP request body for rating a delivery.
type RateDeliveryRequest struct {
	RiderID string  `json:"rider_id"`
	Rating  float64 `json:"rating"`
}

// DeliveryResponse is the HTTP representation of a delivery.
type DeliveryResponse struct {
	ID             string  `json:"id"`
	RiderID        string  `json:"rider_id"`
	DriverID       string  `json:"driver_id,omitempty"`
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	PickupAddress  string  `json:"pickup_address,omitempty"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	DropoffAddress string  `json:"dropoff_address,omitempty"`
	VehicleClass   string  `json:"vehicle_class"`
	EstimatedFare  float64 `json:"estimated_fare"`
	ActualFare     float64 `json:"actual_fare,omitempty"`
	PaymentMethod  string  `json:"payment_method"`
	PaymentStatus  string  `json:"payment_status"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	AcceptedAt     string  `json:"accepted_at,omitempty"`
	PickedUpAt     string  `json:"picked_up_at,omitempty"`
	DeliveredAt    string  `json:"delivered_at,omitempty"`
	CompletedAt    string  `json:"completed_at,omitempty"`
	CancelledAt    string  `json:"cancelled_at,omitempty"`
	CancelledBy    string  `json:"cancelled_by,omitempty"`
	CancelReason   string  `json:"cancel_reason,omitempty"`
	DisputeReason  string  `json:"dispute_reason,omitempty"`
}

// CreateDeliveryResponse is the HTTP response for creating a delivery.
type CreateDeliveryResponse struct {
	Delivery DeliveryResponse `json:"delivery"`
	Quote    any              `json:"quote"`
}

// TrackResponse is the HTTP response for a delivery track.
type TrackResponse struct {
	Live    *domain.PositionSample   `json:"live,omitempty"`
	History []*domain.PositionSample `json:"history"`
}

func toDeliveryResponse(d *domain.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:             d.ID,
		RiderID:        d.RiderID,
		DriverID:       d.DriverID,
		PickupLat:      d.PickupLat,
		PickupLng:      d.PickupLng,
		PickupAddress:  d.PickupAddress,
		DropoffLat:     d.DropoffLat,
		DropoffLng:     d.DropoffLng,
		DropoffAddress: d.DropoffAddress,
		VehicleClass:   string(d.VehicleClass),
		EstimatedFare:  d.EstimatedFare,
		ActualFare:     d.ActualFare,
		PaymentMethod:  string(d.PaymentMethod),
		PaymentStatus:  string(d.PaymentStatus),
		Status:         string(d.Status),
		CreatedAt:      formatTime(d.CreatedAt),
		AcceptedAt:     formatTime(d.AcceptedAt),
		PickedUpAt:     formatTime(d.PickedUpAt),
		DeliveredAt:    formatTime(d.DeliveredAt),
		CompletedAt:    formatTime(d.CompletedAt),
		CancelledAt:    formatTime(d.CancelledAt),
		CancelledBy:    d.CancelledBy,
		CancelReason:   d.CancelReason,
		DisputeReason:  d.DisputeReason,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// CreateDelivery handles POST /v1/deliveries
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	var req CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	paymentMethod, err := service.ValidatePaymentMethod(req.PaymentMethod)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.deliveryService.CreateDelivery(c.Request.Context(), service.CreateDeliveryRequest{
		RiderID:        req.RiderID,
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		PickupAddress:  req.PickupAddress,
		DropoffLat:     req.DropoffLat,
		DropoffLng:     req.DropoffLng,
		DropoffAddress: req.DropoffAddress,
		Package: domain.Package{
			WeightKg:        req.Package.WeightKg,
			LengthCm:        req.Package.LengthCm,
			WidthCm:         req.Package.WidthCm,
			HeightCm:        req.Package.HeightCm,
			Fragile:         req.Package.Fragile,
			SpecialHandling: req.Package.SpecialHandling,
		},
		VehicleClass:  domain.VehicleClass(req.VehicleClass),
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateDeliveryResponse{
		Delivery: toDeliveryResponse(result.Delivery),
		Quote:    result.Quote,
	})
}

// GetDelivery handles GET /v1/deliveries/:id
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	delivery, err := h.deliveryService.GetDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDeliveryResponse(delivery))
}

// UpdateStatus handles POST /v1/deliveries/:id/status
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	delivery, err := h.deliveryService.Transition(c.Request.Context(), c.Param("id"),
		domain.DeliveryStatus(req.Status), service.TransitionContext{
			DriverID:         req.DriverID,
			ActorID:          req.ActorID,
			Reason:           req.Reason,
			PickupConfirmed:  req.PickupConfirmed,
			PaymentConfirmed: req.PaymentConfirmed,
		})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDeliveryResponse(delivery))
}

// CancelDelivery handles POST /v1/deliveries/:id/cancel
func (h *DeliveryHandler) CancelDelivery(c *gin.Context) {
	var req CancelDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	delivery, err := h.deliveryService.Transition(c.Request.Context(), c.Param("id"),
		domain.DeliveryStatusCancelled, service.TransitionContext{
			ActorID: req.CancelledBy,
			Reason:  req.Reason,
		})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDeliveryResponse(delivery))
}

// RateDelivery handles POST /v1/deliveries/:id/rate
func (h *DeliveryHandler) RateDelivery(c *gin.Context) {
	var req RateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.deliveryService.RateDelivery(c.Request.Context(), c.Param("id"), req.RiderID, req.Rating); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "rated"})
}

// GetTrack handles GET /v1/deliveries/:id/track
func (h *DeliveryHandler) GetTrack(c *gin.Context) {
	live, history, err := h.trackingService.DeliveryTrack(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []*domain.PositionSample{}
	}
	respondJSON(c, http.StatusOK, TrackResponse{Live: live, History: history})
}
