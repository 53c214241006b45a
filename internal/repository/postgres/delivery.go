package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"courier/internal/domain"
	"courier/internal/repository"
)

// DeliveryRepository is a PostgreSQL implementation of repository.DeliveryRepository.
type DeliveryRepository struct {
	q Querier
}

// NewDeliveryRepository creates a new PostgreSQL delivery repository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{q: db}
}

// NewDeliveryRepositoryWithTx creates a delivery repository using a transaction.
func NewDeliveryRepositoryWithTx(tx *sql.Tx) *DeliveryRepository {
	return &DeliveryRepository{q: tx}
}

const deliveryColumns = `
	id, rider_id, driver_id, pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	weight_kg, length_cm, width_cm, height_cm, fragile, special_handling,
	vehicle_class, estimated_fare, actual_fare, payment_method, payment_status,
	status, created_at, accepted_at, picked_up_at, delivered_at, completed_at,
	cancelled_at, cancelled_by, cancel_reason, dispute_reason`

// Create persists a new delivery.
func (r *DeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	query := `
		INSERT INTO deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
	`

	_, err := r.q.ExecContext(ctx, query,
		d.ID, d.RiderID, nullString(d.DriverID),
		d.PickupLat, d.PickupLng, d.PickupAddress,
		d.DropoffLat, d.DropoffLng, d.DropoffAddress,
		d.Package.WeightKg, d.Package.LengthCm, d.Package.WidthCm, d.Package.HeightCm,
		d.Package.Fragile, d.Package.SpecialHandling,
		d.VehicleClass, d.EstimatedFare, d.ActualFare, d.PaymentMethod, d.PaymentStatus,
		d.Status, d.CreatedAt,
		nullTime(d.AcceptedAt), nullTime(d.PickedUpAt), nullTime(d.DeliveredAt),
		nullTime(d.CompletedAt), nullTime(d.CancelledAt),
		nullString(d.CancelledBy), nullString(d.CancelReason), nullString(d.DisputeReason),
	)

	return err
}

// GetByID retrieves a delivery by ID.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	d, err := scanDelivery(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// Update writes all mutable fields unconditionally.
func (r *DeliveryRepository) Update(ctx context.Context, d *domain.Delivery) error {
	result, err := r.q.ExecContext(ctx, updateDeliveryQuery+` WHERE id = $20`, updateDeliveryArgs(d)...)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

// UpdateIfStatus writes all mutable fields only while the stored status still
// equals expected. This is the conditional-update discipline every contested
// transition relies on: only one concurrent caller observes success.
func (r *DeliveryRepository) UpdateIfStatus(ctx context.Context, d *domain.Delivery, expected domain.DeliveryStatus) error {
	args := append(updateDeliveryArgs(d), expected)
	result, err := r.q.ExecContext(ctx, updateDeliveryQuery+` WHERE id = $20 AND status = $21`, args...)
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
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, d.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStatusConflict
}

// ListStatusOlderThan returns deliveries sitting in status since before
// cutoff, judged by the timestamp that moved them there.
func (r *DeliveryRepository) ListStatusOlderThan(ctx context.Context, status domain.DeliveryStatus, cutoff time.Time) ([]*domain.Delivery, error) {
	column := "created_at"
	switch status {
	case domain.DeliveryStatusAccepted:
		column = "accepted_at"
	case domain.DeliveryStatusDelivered:
		column = "delivered_at"
	}

	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE status = $1 AND ` + column + ` < $2 ORDER BY ` + column + ` ASC LIMIT 500`

	rows, err := r.q.QueryContext(ctx, query, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

const updateDeliveryQuery = `
	UPDATE deliveries SET
		driver_id = $1, estimated_fare = $2, actual_fare = $3,
		payment_method = $4, payment_status = $5, status = $6,
		accepted_at = $7, picked_up_at = $8, delivered_at = $9,
		completed_at = $10, cancelled_at = $11,
		cancelled_by = $12, cancel_reason = $13, dispute_reason = $14,
		pickup_address = $15, dropoff_address = $16,
		weight_kg = $17, fragile = $18, special_handling = $19`

func updateDeliveryArgs(d *domain.Delivery) []any {
	return []any{
		nullString(d.DriverID), d.EstimatedFare, d.ActualFare,
		d.PaymentMethod, d.PaymentStatus, d.Status,
		nullTime(d.AcceptedAt), nullTime(d.PickedUpAt), nullTime(d.DeliveredAt),
		nullTime(d.CompletedAt), nullTime(d.CancelledAt),
		nullString(d.CancelledBy), nullString(d.CancelReason), nullString(d.DisputeReason),
		d.PickupAddress, d.DropoffAddress,
		d.Package.WeightKg, d.Package.Fragile, d.Package.SpecialHandling,
		d.ID,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*domain.Delivery, error) {
	var (
		d           domain.Delivery
		driverID    sql.NullString
		acceptedAt  sql.NullTime
		pickedUpAt  sql.NullTime
		deliveredAt sql.NullTime
		completedAt sql.NullTime
		cancelledAt sql.NullTime
		cancelledBy sql.NullString
		reason      sql.NullString
		dispute     sql.NullString
	)

	err := row.Scan(
		&d.ID, &d.RiderID, &driverID,
		&d.PickupLat, &d.PickupLng, &d.PickupAddress,
		&d.DropoffLat, &d.DropoffLng, &d.DropoffAddress,
		&d.Package.WeightKg, &d.Package.LengthCm, &d.Package.WidthCm, &d.Package.HeightCm,
		&d.Package.Fragile, &d.Package.SpecialHandling,
		&d.VehicleClass, &d.EstimatedFare, &d.ActualFare, &d.PaymentMethod, &d.PaymentStatus,
		&d.Status, &d.CreatedAt,
		&acceptedAt, &pickedUpAt, &deliveredAt, &completedAt, &cancelledAt,
		&cancelledBy, &reason, &dispute,
	)
	if err != nil {
		return nil, err
	}

	d.DriverID = driverID.String
	d.AcceptedAt = acceptedAt.Time
	d.PickedUpAt = pickedUpAt.Time
	d.DeliveredAt = deliveredAt.Time
	d.CompletedAt = completedAt.Time
	d.CancelledAt = cancelledAt.Time
	d.CancelledBy = cancelledBy.String
	d.CancelReason = reason.String
	d.DisputeReason = dispute.String

	return &d, nil
}

func checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
