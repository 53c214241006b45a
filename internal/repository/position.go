package repository

import (
	"context"
	"time"

	"courier/internal/domain"
)

// PositionRepository defines the append-only durable position history.
type PositionRepository interface {
	// AppendBatch persists a batch of position samples. Samples are written
	// in slice order.
	AppendBatch(ctx context.Context, samples []*domain.PositionSample) error

	// LatestByDriver returns the most recent sample for a driver, or
	// ErrNotFound when no history exists.
	LatestByDriver(ctx context.Context, driverID string) (*domain.PositionSample, error)

	// ListByDelivery returns up to limit samples for a delivery, newest
	// first.
	ListByDelivery(ctx context.Context, deliveryID string, limit int) ([]*domain.PositionSample, error)

	// DeleteOlderThan prunes history beyond the retention window. Returns
	// the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
