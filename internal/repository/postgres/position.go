package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"courier/internal/domain"
	"courier/internal/repository"
)

// PositionRepository is a PostgreSQL implementation of repository.PositionRepository.
type PositionRepository struct {
	q Querier
}

// NewPositionRepository creates a new PostgreSQL position repository.
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{q: db}
}

// AppendBatch persists a batch of position samples in a single statement.
func (r *PositionRepository) AppendBatch(ctx context.Context, samples []*domain.PositionSample) error {
	if len(samples) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(samples)*9)
	)
	sb.WriteString(`
		INSERT INTO position_history
			(driver_id, delivery_id, lat, lng, bearing, speed_kph, accuracy_m, driver_status, recorded_at)
		VALUES `)

	for i, s := range samples {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		sb.WriteString(placeholders(base+1, 9))
		args = append(args,
			s.DriverID, nullString(s.DeliveryID), s.Lat, s.Lng,
			s.Bearing, s.SpeedKph, s.AccuracyM, s.Status, s.RecordedAt,
		)
	}

	_, err := r.q.ExecContext(ctx, sb.String(), args...)
	return err
}

// LatestByDriver returns the most recent sample for a driver.
func (r *PositionRepository) LatestByDriver(ctx context.Context, driverID string) (*domain.PositionSample, error) {
	query := `
		SELECT driver_id, COALESCE(delivery_id, ''), lat, lng, bearing, speed_kph, accuracy_m, driver_status, recorded_at
		FROM position_history
		WHERE driver_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`
	var s domain.PositionSample
	err := r.q.QueryRowContext(ctx, query, driverID).Scan(
		&s.DriverID, &s.DeliveryID, &s.Lat, &s.Lng,
		&s.Bearing, &s.SpeedKph, &s.AccuracyM, &s.Status, &s.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListByDelivery returns up to limit samples for a delivery, newest first.
func (r *PositionRepository) ListByDelivery(ctx context.Context, deliveryID string, limit int) ([]*domain.PositionSample, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT driver_id, COALESCE(delivery_id, ''), lat, lng, bearing, speed_kph, accuracy_m, driver_status, recorded_at
		FROM position_history
		WHERE delivery_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := r.q.QueryContext(ctx, query, deliveryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*domain.PositionSample
	for rows.Next() {
		var s domain.PositionSample
		if err := rows.Scan(
			&s.DriverID, &s.DeliveryID, &s.Lat, &s.Lng,
			&s.Bearing, &s.SpeedKph, &s.AccuracyM, &s.Status, &s.RecordedAt,
		); err != nil {
			return nil, err
		}
		samples = append(samples, &s)
	}
	return samples, rows.Err()
}

// DeleteOlderThan prunes history beyond the retention window.
func (r *PositionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM position_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// placeholders renders "($n, $n+1, …)" for a batch insert row.
func placeholders(start, count int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(start + i))
	}
	sb.WriteByte(')')
	return sb.String()
}
