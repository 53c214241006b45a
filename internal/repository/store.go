package repository

import "context"

// Store bundles the repositories plus a transaction runner so services can
// apply a delivery transition and its driver-state coupling in one logical
// unit.
type Store interface {
	Deliveries() DeliveryRepository
	Drivers() DriverRepository
	Positions() PositionRepository

	// WithinTx runs fn against transaction-scoped repositories, committing
	// on nil and rolling back on error. Calling WithinTx on an already
	// transactional store reuses the ambient transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
