package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"courier/internal/domain"
	"courier/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

const driverColumns = `
	id, COALESCE(name, ''), COALESCE(phone, ''), status, vehicle_class,
	verified, is_available, current_delivery_id, last_lat, last_lng, last_seen_at,
	total_earnings, today_earnings, completed_deliveries, rating, rating_count`

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, d *domain.Driver) error {
	query := `
		INSERT INTO drivers (id, name, phone, status, vehicle_class, verified,
			is_available, current_delivery_id, last_lat, last_lng, last_seen_at,
			total_earnings, today_earnings, completed_deliveries, rating, rating_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.q.ExecContext(ctx, query,
		d.ID, d.Name, d.Phone, d.Status, d.VehicleClass, d.Verified,
		d.IsAvailable, nullString(d.CurrentDeliveryID), d.LastLat, d.LastLng, nullTime(d.LastSeenAt),
		d.TotalEarnings, d.TodayEarnings, d.CompletedDeliveries, d.Rating, d.RatingCount,
	)
	return err
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByPhone retrieves a driver by phone number.
func (r *DriverRepository) GetByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE phone = $1`
	return r.getOne(ctx, query, phone)
}

func (r *DriverRepository) getOne(ctx context.Context, query string, arg any) (*domain.Driver, error) {
	d, err := scanDriver(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// Update writes all mutable driver fields.
func (r *DriverRepository) Update(ctx context.Context, d *domain.Driver) error {
	query := `
		UPDATE drivers SET
			name = $1, phone = $2, status = $3, vehicle_class = $4, verified = $5,
			is_available = $6, current_delivery_id = $7, last_lat = $8, last_lng = $9,
			last_seen_at = $10, total_earnings = $11, today_earnings = $12,
			completed_deliveries = $13, rating = $14, rating_count = $15
		WHERE id = $16
	`
	result, err := r.q.ExecContext(ctx, query,
		d.Name, d.Phone, d.Status, d.VehicleClass, d.Verified,
		d.IsAvailable, nullString(d.CurrentDeliveryID), d.LastLat, d.LastLng,
		nullTime(d.LastSeenAt), d.TotalEarnings, d.TodayEarnings,
		d.CompletedDeliveries, d.Rating, d.RatingCount,
		d.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// UpdateStatus updates only the operational status of a driver.
func (r *DriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	result, err := r.q.ExecContext(ctx, `UPDATE drivers SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// UpdatePosition records the driver's last known position.
func (r *DriverRepository) UpdatePosition(ctx context.Context, id string, lat, lng float64, seenAt time.Time) error {
	query := `UPDATE drivers SET last_lat = $1, last_lng = $2, last_seen_at = $3 WHERE id = $4`
	result, err := r.q.ExecContext(ctx, query, lat, lng, seenAt, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// ClaimDelivery atomically assigns a delivery to an eligible driver. The
// eligibility conditions live in the WHERE clause, so a concurrent claim for
// the same driver loses on rows-affected instead of double-assigning.
func (r *DriverRepository) ClaimDelivery(ctx context.Context, driverID, deliveryID string) error {
	query := `
		UPDATE drivers SET status = $1, is_available = FALSE, current_delivery_id = $2
		WHERE id = $3 AND status = $4 AND is_available AND verified
			AND current_delivery_id IS NULL
	`
	result, err := r.q.ExecContext(ctx, query, domain.DriverStatusBusy, deliveryID, driverID, domain.DriverStatusOnline)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a lost race from a missing row.
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM drivers WHERE id = $1)`, driverID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStatusConflict
}

// ReleaseDelivery frees the driver, but only while the given delivery still
// holds them. Zero rows affected means a newer assignment landed first and
// the release is a no-op.
func (r *DriverRepository) ReleaseDelivery(ctx context.Context, driverID, deliveryID string) error {
	query := `
		UPDATE drivers SET status = $1, is_available = TRUE, current_delivery_id = NULL
		WHERE id = $2 AND current_delivery_id = $3
	`
	_, err := r.q.ExecContext(ctx, query, domain.DriverStatusOnline, driverID, deliveryID)
	return err
}

// ListAvailable returns verified ONLINE drivers with no current delivery.
func (r *DriverRepository) ListAvailable(ctx context.Context) ([]*domain.Driver, error) {
	query := `
		SELECT ` + driverColumns + ` FROM drivers
		WHERE status = $1 AND is_available AND verified AND current_delivery_id IS NULL
		ORDER BY last_seen_at DESC NULLS LAST
		LIMIT 200
	`
	rows, err := r.q.QueryContext(ctx, query, domain.DriverStatusOnline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var (
		d               domain.Driver
		currentDelivery sql.NullString
		lastSeenAt      sql.NullTime
	)

	err := row.Scan(
		&d.ID, &d.Name, &d.Phone, &d.Status, &d.VehicleClass,
		&d.Verified, &d.IsAvailable, &currentDelivery, &d.LastLat, &d.LastLng, &lastSeenAt,
		&d.TotalEarnings, &d.TodayEarnings, &d.CompletedDeliveries, &d.Rating, &d.RatingCount,
	)
	if err != nil {
		return nil, err
	}

	d.CurrentDeliveryID = currentDelivery.String
	d.LastSeenAt = lastSeenAt.Time

	return &d, nil
}
