package repository

import (
	"context"
	"time"

	"courier/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create adds a new driver.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByPhone retrieves a driver by phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.Driver, error)

	// Update writes all mutable driver fields.
	Update(ctx context.Context, driver *domain.Driver) error

	// UpdateStatus updates only the operational status of a driver.
	UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error

	// UpdatePosition records the driver's last known position and the time
	// it was observed. Written by tracking ingest only.
	UpdatePosition(ctx context.Context, id string, lat, lng float64, seenAt time.Time) error

	// ClaimDelivery atomically assigns deliveryID to the driver, flipping
	// them to BUSY and unavailable. The eligibility check (ONLINE,
	// available, verified, no current delivery) is part of the write, so
	// two claims for the same driver can never both succeed. Returns
	// ErrStatusConflict when the driver exists but is not claimable,
	// ErrNotFound when the driver does not exist.
	ClaimDelivery(ctx context.Context, driverID, deliveryID string) error

	// ReleaseDelivery returns the driver to ONLINE and available, but only
	// while deliveryID is still their current delivery. A release that
	// finds a different (newer) assignment is a no-op.
	ReleaseDelivery(ctx context.Context, driverID, deliveryID string) error

	// ListAvailable returns verified ONLINE drivers that are available and
	// carry no current delivery. Cold-path supplement for the matcher when
	// the location cache is thin.
	ListAvailable(ctx context.Context) ([]*domain.Driver, error)
}
