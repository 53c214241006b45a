package postgres

import (
	"context"
	"database/sql"

	"courier/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db *sql.DB // nil when transaction-scoped
	q  Querier
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

var _ repository.Store = (*Store)(nil)

// Deliveries returns the delivery repository bound to this store's querier.
func (s *Store) Deliveries() repository.DeliveryRepository {
	return &DeliveryRepository{q: s.q}
}

// Drivers returns the driver repository bound to this store's querier.
func (s *Store) Drivers() repository.DriverRepository {
	return &DriverRepository{q: s.q}
}

// Positions returns the position repository bound to this store's querier.
func (s *Store) Positions() repository.PositionRepository {
	return &PositionRepository{q: s.q}
}

// WithinTx runs fn against a transaction-scoped Store. When the receiver is
// already transaction-scoped, fn joins the ambient transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
