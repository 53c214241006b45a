package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationDeliveryOffer  NotificationType = "DELIVERY_OFFER"
	NotificationDeliveryStatus NotificationType = "DELIVERY_STATUS"
	NotificationDisputeOpened  NotificationType = "DISPUTE_OPENED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string // Rider or Driver ID
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService handles notification delivery.
type NotificationService struct {
	// In a real system, this would have:
	// - Push notification client (FCM, APNS)
	// - SMS client (Twilio)
	// - Email client (SendGrid)
	log zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(log zerolog.Logger) *NotificationService {
	return &NotificationService{log: log}
}

// NotifyDeliveryOffer offers a delivery to a candidate driver.
func (s *NotificationService) NotifyDeliveryOffer(ctx context.Context, delivery *domain.Delivery, driver *domain.Driver, distanceKm float64) error {
	notification := Notification{
		Type:        NotificationDeliveryOffer,
		RecipientID: driver.ID,
		Title:       "New Delivery Request",
		Message:     fmt.Sprintf("New delivery %.1f km away. Pickup at %s", distanceKm, delivery.PickupAddress),
		Data: map[string]interface{}{
			"delivery_id":    delivery.ID,
			"pickup_lat":     delivery.PickupLat,
			"pickup_lng":     delivery.PickupLng,
			"vehicle_class":  delivery.VehicleClass,
			"estimated_fare": delivery.EstimatedFare,
			"distance_km":    distanceKm,
		},
		CreatedAt: time.Now(),
	}
	return s.send(ctx, notification)
}

// NotifyDeliveryStatus tells a rider or driver that a delivery changed
// status.
func (s *NotificationService) NotifyDeliveryStatus(ctx context.Context, recipientID string, delivery *domain.Delivery) error {
	title, message := statusCopy(delivery)
	notification := Notification{
		Type:        NotificationDeliveryStatus,
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Data: map[string]interface{}{
			"delivery_id": delivery.ID,
			"status":      delivery.Status,
		},
		CreatedAt: time.Now(),
	}
	return s.send(ctx, notification)
}

// NotifyDisputeOpened tells the rider a dispute was opened on their
// delivery.
func (s *NotificationService) NotifyDisputeOpened(ctx context.Context, delivery *domain.Delivery, reason string) error {
	notification := Notification{
		Type:        NotificationDisputeOpened,
		RecipientID: delivery.RiderID,
		Title:       "Delivery Disputed",
		Message:     "A dispute has been opened on your delivery. Our team will be in touch.",
		Data: map[string]interface{}{
			"delivery_id": delivery.ID,
			"reason":      reason,
		},
		CreatedAt: time.Now(),
	}
	return s.send(ctx, notification)
}

func statusCopy(delivery *domain.Delivery) (title, message string) {
	switch delivery.Status {
	case domain.DeliveryStatusAccepted:
		return "Driver Assigned", "A driver has accepted your delivery."
	case domain.DeliveryStatusDriverEnRoute:
		return "Driver En Route", "Your driver is heading to the pickup point."
	case domain.DeliveryStatusArrivedAtPickup:
		return "Driver Arrived", "Your driver has arrived at the pickup point."
	case domain.DeliveryStatusInTransit:
		return "Package In Transit", "Your package has been picked up and is on its way."
	case domain.DeliveryStatusArrivedAtDropoff:
		return "Driver At Dropoff", "Your driver has arrived at the dropoff point."
	case domain.DeliveryStatusDelivered:
		return "Package Delivered", "Your package has been delivered."
	case domain.DeliveryStatusCompleted:
		return "Delivery Completed", fmt.Sprintf("Your delivery is complete. Total fare: ₦%.0f", delivery.ActualFare)
	case domain.DeliveryStatusCancelled:
		return "Delivery Cancelled", fmt.Sprintf("Your delivery was cancelled. %s", delivery.CancelReason)
	case domain.DeliveryStatusDisputed:
		return "Delivery Disputed", "A dispute has been opened on your delivery."
	}
	return "Delivery Update", fmt.Sprintf("Your delivery is now %s", delivery.Status)
}

// send delivers a notification (mock implementation).
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	// In a real implementation, this would:
	// 1. Store notification in database
	// 2. Send push notification via FCM/APNS
	// 3. Broadcast via WebSocket for real-time updates

	s.log.Info().
		Str("type", string(notification.Type)).
		Str("recipient", notification.RecipientID).
		Str("title", notification.Title).
		Str("message", notification.Message).
		Msg("notification sent")

	return nil
}
