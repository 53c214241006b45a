package domain

import "time"

// DriverStatus represents the operational status of a driver.
type DriverStatus string

const (
	DriverStatusOffline  DriverStatus = "OFFLINE"
	DriverStatusLoggedIn DriverStatus = "LOGGED_IN"
	DriverStatusOnline   DriverStatus = "ONLINE"
	DriverStatusBusy     DriverStatus = "BUSY"
)

// VehicleClass represents the vehicle a driver operates.
type VehicleClass string

const (
	VehicleClassBike  VehicleClass = "BIKE"
	VehicleClassCar   VehicleClass = "CAR"
	VehicleClassVan   VehicleClass = "VAN"
	VehicleClassTruck VehicleClass = "TRUCK"
)

// Driver represents a participant capable of fulfilling deliveries.
//
// Invariants maintained by the delivery service:
// IsAvailable implies Status == ONLINE and CurrentDeliveryID == "";
// Status == BUSY implies CurrentDeliveryID != "".
type Driver struct {
	ID                  string
	Name                string
	Phone               string
	Status              DriverStatus
	VehicleClass        VehicleClass
	Verified            bool
	IsAvailable         bool
	CurrentDeliveryID   string
	LastLat             float64
	LastLng             float64
	LastSeenAt          time.Time
	TotalEarnings       float64
	TodayEarnings       float64
	CompletedDeliveries int
	Rating              float64
	RatingCount         int
}

// AddRating folds a new rating into the running average.
func (d *Driver) AddRating(rating float64) {
	total := d.Rating*float64(d.RatingCount) + rating
	d.RatingCount++
	d.Rating = total / float64(d.RatingCount)
}
