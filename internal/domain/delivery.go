package domain

import "time"

// DeliveryStatus represents the current lifecycle status of a delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending          DeliveryStatus = "PENDING"
	DeliveryStatusAccepted         DeliveryStatus = "ACCEPTED"
	DeliveryStatusDriverEnRoute    DeliveryStatus = "DRIVER_EN_ROUTE"
	DeliveryStatusArrivedAtPickup  DeliveryStatus = "ARRIVED_AT_PICKUP"
	DeliveryStatusInTransit        DeliveryStatus = "IN_TRANSIT"
	DeliveryStatusArrivedAtDropoff DeliveryStatus = "ARRIVED_AT_DROPOFF"
	DeliveryStatusDelivered        DeliveryStatus = "DELIVERED"
	DeliveryStatusCompleted        DeliveryStatus = "COMPLETED"
	DeliveryStatusCancelled        DeliveryStatus = "CANCELLED"
	DeliveryStatusDisputed         DeliveryStatus = "DISPUTED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusCompleted || s == DeliveryStatusCancelled
}

// PaymentMethod represents how the rider pays for a delivery.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodWallet   PaymentMethod = "WALLET"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

// PaymentStatus represents the current status of a delivery's payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Package describes the parcel attached to a delivery.
type Package struct {
	WeightKg        float64
	LengthCm        float64
	WidthCm         float64
	HeightCm        float64
	Fragile         bool
	SpecialHandling bool
}

// VolumeM3 returns the package volume in cubic metres.
func (p Package) VolumeM3() float64 {
	return (p.LengthCm * p.WidthCm * p.HeightCm) / 1_000_000
}

// Delivery represents a package-transport request and its lifecycle record.
// Deliveries are never deleted; terminal statuses are COMPLETED and CANCELLED.
type Delivery struct {
	ID             string
	RiderID        string
	DriverID       string // empty until accepted
	PickupLat      float64
	PickupLng      float64
	PickupAddress  string
	DropoffLat     float64
	DropoffLng     float64
	DropoffAddress string
	Package        Package
	VehicleClass   VehicleClass
	EstimatedFare  float64
	ActualFare     float64
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Status         DeliveryStatus
	CreatedAt      time.Time
	AcceptedAt     time.Time
	PickedUpAt     time.Time
	DeliveredAt    time.Time
	CompletedAt    time.Time
	CancelledAt    time.Time
	CancelledBy    string
	CancelReason   string
	DisputeReason  string
}
