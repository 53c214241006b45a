package service

import (
	"context"
	"encoding/json"
	"time"

	"courier/internal/cache"
	"courier/internal/domain"
)

// Cache key prefixes for the location view. Each key logically belongs to
// exactly one driver or one delivery; only that entity's reports and effects
// write it.
const (
	driverPositionPrefix = "position:driver:"
	deliveryTrackPrefix  = "track:delivery:"
)

func driverPositionKey(driverID string) string { return driverPositionPrefix + driverID }

func deliveryTrackKey(deliveryID string) string { return deliveryTrackPrefix + deliveryID }

func putPosition(ctx context.Context, store cache.Store, key string, sample *domain.PositionSample, ttl time.Duration) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, data, ttl)
}

func getPosition(ctx context.Context, store cache.Store, key string) (*domain.PositionSample, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var sample domain.PositionSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, err
	}
	return &sample, nil
}
