package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService   *service.DriverService
	deliveryService *service.DeliveryService
	trackingService *service.TrackingService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(
	driverService *service.DriverService,
	deliveryService *service.DeliveryService,
	trackingService *service.TrackingService,
) *DriverHandler {
	return &DriverHandler{
		driverService:   driverService,
		deliveryService: deliveryService,
		trackingService: trackingService,
	}
}

// RegisterDriverRequest is the HTTP request body for registering a driver.
type RegisterDriverRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	VehicleClass string `json:"vehicle_class"` // BIKE, CAR, VAN, TRUCK
}

// AcceptDeliveryRequest is the HTTP request body for accepting a delivery.
type AcceptDeliveryRequest struct {
	DeliveryID string `json:"delivery_id"`
}

// RejectDeliveryRequest is the HTTP request body for rejecting an offer.
type RejectDeliveryRequest struct {
	DeliveryID string `json:"delivery_id"`
	Reason     string `json:"reason,omitempty"`
}

// ReportPositionRequest is the HTTP request body for a position report.
type ReportPositionRequest struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Bearing    float64 `json:"bearing,omitempty"`
	SpeedKph   float64 `json:"speed_kph,omitempty"`
	AccuracyM  float64 `json:"accuracy_m,omitempty"`
	RecordedAt string  `json:"recorded_at,omitempty"` // RFC3339, server time when absent
}

// DriverResponse is the HTTP representation of a driver.
type DriverResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Phone               string  `json:"phone"`
	Status              string  `json:"status"`
	VehicleClass        string  `json:"vehicle_class"`
	Verified            bool    `json:"verified"`
	IsAvailable         bool    `json:"is_available"`
	CurrentDeliveryID   string  `json:"current_delivery_id,omitempty"`
	TotalEarnings       float64 `json:"total_earnings"`
	TodayEarnings       float64 `json:"today_earnings"`
	CompletedDeliveries int     `json:"completed_deliveries"`
	Rating              float64 `json:"rating"`
	RatingCount         int     `json:"rating_count"`
}

func toDriverResponse(d *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:                  d.ID,
		Name:                d.Name,
		Phone:               d.Phone,
		Status:              string(d.Status),
		VehicleClass:        string(d.VehicleClass),
		Verified:            d.Verified,
		IsAvailable:         d.IsAvailable,
		CurrentDeliveryID:   d.CurrentDeliveryID,
		TotalEarnings:       d.TotalEarnings,
		TodayEarnings:       d.TodayEarnings,
		CompletedDeliveries: d.CompletedDeliveries,
		Rating:              d.Rating,
		RatingCount:         d.RatingCount,
	}
}

// Register handles POST /v1/drivers/register
func (h *DriverHandler) Register(c *gin.Context) {
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, err := h.driverService.RegisterDriver(c.Request.Context(), service.RegisterDriverRequest{
		Name:         req.Name,
		Phone:        req.Phone,
		VehicleClass: domain.VehicleClass(req.VehicleClass),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toDriverResponse(driver))
}

// ListAvailable handles GET /v1/drivers/available
func (h *DriverHandler) ListAvailable(c *gin.Context) {
	drivers, err := h.driverService.ListAvailableDrivers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]DriverResponse, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, toDriverResponse(d))
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": out})
}

// GetDriver handles GET /v1/drivers/:id
func (h *DriverHandler) GetDriver(c *gin.Context) {
	driver, err := h.driverService.GetDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}

// Verify handles POST /v1/drivers/:id/verify
func (h *DriverHandler) Verify(c *gin.Context) {
	if err := h.driverService.VerifyDriver(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "verified"})
}

// Login handles POST /v1/drivers/:id/login
func (h *DriverHandler) Login(c *gin.Context) {
	if err := h.driverService.Login(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": string(domain.DriverStatusLoggedIn)})
}

// GoOnline handles POST /v1/drivers/:id/online
func (h *DriverHandler) GoOnline(c *gin.Context) {
	if err := h.driverService.GoOnline(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": string(domain.DriverStatusOnline)})
}

// GoOffline handles POST /v1/drivers/:id/offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	if err := h.driverService.GoOffline(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": string(domain.DriverStatusOffline)})
}

// AcceptDelivery handles POST /v1/drivers/:id/accept
func (h *DriverHandler) AcceptDelivery(c *gin.Context) {
	var req AcceptDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	delivery, err := h.deliveryService.Accept(c.Request.Context(), req.DeliveryID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDeliveryResponse(delivery))
}

// RejectDelivery handles POST /v1/drivers/:id/reject
func (h *DriverHandler) RejectDelivery(c *gin.Context) {
	var req RejectDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.deliveryService.Reject(c.Request.Context(), req.DeliveryID, c.Param("id"), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "rejected"})
}

// ReportPosition handles POST /v1/drivers/:id/position
func (h *DriverHandler) ReportPosition(c *gin.Context) {
	var req ReportPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sample := domain.PositionSample{
		DriverID:  c.Param("id"),
		Lat:       req.Lat,
		Lng:       req.Lng,
		Bearing:   req.Bearing,
		SpeedKph:  req.SpeedKph,
		AccuracyM: req.AccuracyM,
	}
	if req.RecordedAt != "" {
		recordedAt, err := time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "recorded_at must be RFC3339"})
			return
		}
		sample.RecordedAt = recordedAt
	}

	normalized, err := h.trackingService.Report(c.Request.Context(), sample)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, normalized)
}

// GetPosition handles GET /v1/drivers/:id/position
func (h *DriverHandler) GetPosition(c *gin.Context) {
	sample, err := h.trackingService.DriverPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sample)
}
