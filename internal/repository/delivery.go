package repository

import (
	"context"
	"time"

	"courier/internal/domain"
)

// DeliveryRepository defines the persistence operations for deliveries.
type DeliveryRepository interface {
	// Create persists a new delivery.
	Create(ctx context.Context, delivery *domain.Delivery) error

	// GetByID retrieves a delivery by ID.
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)

	// Update writes all mutable fields unconditionally. Use UpdateIfStatus
	// for any transition that can be contested.
	Update(ctx context.Context, delivery *domain.Delivery) error

	// UpdateIfStatus writes all mutable fields only if the stored status
	// still equals expected. Returns ErrStatusConflict when the precondition
	// fails and ErrNotFound when the delivery does not exist.
	UpdateIfStatus(ctx context.Context, delivery *domain.Delivery, expected domain.DeliveryStatus) error

	// ListStatusOlderThan returns deliveries that have sat in status since
	// before cutoff, judged by the timestamp that put them there. Used by
	// the auto-transition sweeps.
	ListStatusOlderThan(ctx context.Context, status domain.DeliveryStatus, cutoff time.Time) ([]*domain.Delivery, error)
}
