package service

import (
	"context"

	"courier/internal/domain"
	"courier/internal/realtime"
	"courier/internal/repository"
)

// effectKind enumerates the side effects a committed transition can trigger.
// Effects run after the durable write and are best-effort: a failed effect is
// logged, never rolled back into the state change.
type effectKind int

const (
	effectNotifyRider effectKind = iota
	effectNotifyDriver
	effectStartTracking
	effectStopTracking
	effectDriverStats
	effectOpenDispute
	effectPublishStatus
)

func (e effectKind) String() string {
	switch e {
	case effectNotifyRider:
		return "notify_rider"
	case effectNotifyDriver:
		return "notify_driver"
	case effectStartTracking:
		return "start_tracking"
	case effectStopTracking:
		return "stop_tracking"
	case effectDriverStats:
		return "driver_stats"
	case effectOpenDispute:
		return "open_dispute"
	case effectPublishStatus:
		return "publish_status"
	}
	return "unknown"
}

// transitionEffects maps each target status to its ordered effect list.
var transitionEffects = map[domain.DeliveryStatus][]effectKind{
	domain.DeliveryStatusAccepted:         {effectNotifyRider, effectStartTracking, effectPublishStatus},
	domain.DeliveryStatusDriverEnRoute:    {effectNotifyRider, effectPublishStatus},
	domain.DeliveryStatusArrivedAtPickup:  {effectNotifyRider, effectPublishStatus},
	domain.DeliveryStatusInTransit:        {effectNotifyRider, effectPublishStatus},
	domain.DeliveryStatusArrivedAtDropoff: {effectNotifyRider, effectPublishStatus},
	domain.DeliveryStatusDelivered:        {effectNotifyRider, effectPublishStatus},
	domain.DeliveryStatusCompleted:        {effectNotifyRider, effectNotifyDriver, effectDriverStats, effectStopTracking, effectPublishStatus},
	domain.DeliveryStatusCancelled:        {effectNotifyRider, effectNotifyDriver, effectStopTracking, effectPublishStatus},
	domain.DeliveryStatusDisputed:         {effectNotifyRider, effectOpenDispute, effectPublishStatus},
}

type effectHandler func(ctx context.Context, d *domain.Delivery, tctx TransitionContext) error

func (s *DeliveryService) effectHandlers() map[effectKind]effectHandler {
	return map[effectKind]effectHandler{
		effectNotifyRider:   s.effectNotifyRider,
		effectNotifyDriver:  s.effectNotifyDriver,
		effectStartTracking: s.effectStartTracking,
		effectStopTracking:  s.effectStopTracking,
		effectDriverStats:   s.effectDriverStats,
		effectOpenDispute:   s.effectOpenDispute,
		effectPublishStatus: s.effectPublishStatus,
	}
}

func (s *DeliveryService) runEffects(ctx context.Context, d *domain.Delivery, target domain.DeliveryStatus, tctx TransitionContext) {
	for _, kind := range transitionEffects[target] {
		handler, ok := s.effects[kind]
		if !ok {
			s.log.Error().Str("effect", kind.String()).Msg("no handler registered for effect")
			continue
		}
		if err := handler(ctx, d, tctx); err != nil {
			s.log.Warn().
				Str("delivery_id", d.ID).
				Str("status", string(target)).
				Str("effect", kind.String()).
				Err(err).
				Msg("transition effect failed")
		}
	}
}

func (s *DeliveryService) effectNotifyRider(ctx context.Context, d *domain.Delivery, _ TransitionContext) error {
	return s.notifications.NotifyDeliveryStatus(ctx, d.RiderID, d)
}

func (s *DeliveryService) effectNotifyDriver(ctx context.Context, d *domain.Delivery, _ TransitionContext) error {
	if d.DriverID == "" {
		return nil
	}
	return s.notifications.NotifyDeliveryStatus(ctx, d.DriverID, d)
}

// effectStartTracking seeds the delivery's live track key so subscribers have
// a position stream to attach to as soon as the driver is assigned.
func (s *DeliveryService) effectStartTracking(ctx context.Context, d *domain.Delivery, _ TransitionContext) error {
	driver, err := s.store.Drivers().GetByID(ctx, d.DriverID)
	if err != nil {
		return err
	}
	if driver.LastSeenAt.IsZero() {
		return nil
	}
	sample := domain.PositionSample{
		DriverID:   driver.ID,
		DeliveryID: d.ID,
		Lat:        driver.LastLat,
		Lng:        driver.LastLng,
		Status:     driver.Status,
		RecordedAt: driver.LastSeenAt,
	}
	// The seed carries the same TTL as regular position writes. Tracking
	// refreshes the key on every report; an unexpired seed with no reports
	// behind it would otherwise outlive the delivery.
	return putPosition(ctx, s.locations, deliveryTrackKey(d.ID), &sample, s.tracking.PositionTTL)
}

func (s *DeliveryService) effectStopTracking(ctx context.Context, d *domain.Delivery, _ TransitionContext) error {
	return s.locations.Delete(ctx, deliveryTrackKey(d.ID))
}

// effectDriverStats credits earnings and the completion counter. This is
// deliberately outside the transition transaction: stats drift is tolerable,
// a stuck BUSY driver is not.
func (s *DeliveryService) effectDriverStats(ctx context.Context, d *domain.Delivery, _ TransitionContext) error {
	if d.DriverID == "" {
		return nil
	}
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		driver, err := tx.Drivers().GetByID(ctx, d.DriverID)
		if err != nil {
			return err
		}
		earned := d.ActualFare * driverEarningsShare
		driver.TotalEarnings += earned
		driver.TodayEarnings += earned
		driver.CompletedDeliveries++
		return tx.Drivers().Update(ctx, driver)
	})
}

func (s *DeliveryService) effectOpenDispute(ctx context.Context, d *domain.Delivery, tctx TransitionContext) error {
	s.log.Info().
		Str("delivery_id", d.ID).
		Str("rider_id", d.RiderID).
		Str("reason", tctx.Reason).
		Msg("dispute opened")
	return s.notifications.NotifyDisputeOpened(ctx, d, tctx.Reason)
}

func (s *DeliveryService) effectPublishStatus(ctx context.Context, d *domain.Delivery, _ TransitionContext) error {
	return s.publisher.Publish(ctx, realtime.DeliveryTopic(d.ID), "status_changed", map[string]any{
		"delivery_id": d.ID,
		"status":      d.Status,
		"driver_id":   d.DriverID,
	})
}
