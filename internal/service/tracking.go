package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/cache"
	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/realtime"
	"courier/internal/repository"
)

// positionStripes is the number of per-driver locks guarding the
// read-compare-write against the location cache.
const positionStripes = 64

// TrackingService ingests driver position reports: hot path into the
// location cache, durable path through a batched history writer.
type TrackingService struct {
	store     repository.Store
	locations cache.Store
	publisher realtime.Publisher
	cfg       config.TrackingConfig
	log       zerolog.Logger
	now       func() time.Time

	stripes [positionStripes]sync.Mutex

	writeCh   chan domain.PositionSample
	writeWG   sync.WaitGroup
	writeOnce sync.Once
	stopCh    chan struct{}
}

// NewTrackingService creates a new TrackingService.
func NewTrackingService(
	store repository.Store,
	locations cache.Store,
	publisher realtime.Publisher,
	cfg config.TrackingConfig,
	log zerolog.Logger,
) *TrackingService {
	return &TrackingService{
		store:     store,
		locations: locations,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		writeCh:   make(chan domain.PositionSample, cfg.WriteBuffer),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background history writer. Safe to call once.
func (s *TrackingService) Start() {
	s.writeOnce.Do(func() {
		s.writeWG.Add(1)
		go s.writeLoop()
	})
}

// Stop flushes buffered samples and stops the writer.
func (s *TrackingService) Stop() {
	close(s.stopCh)
	s.writeWG.Wait()
}

func (s *TrackingService) stripe(driverID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(driverID))
	return &s.stripes[h.Sum32()%positionStripes]
}

// Report ingests one position sample from a driver and returns the
// normalized sample (timestamp defaulted, status and active delivery
// attached). Samples may arrive out of order; an older sample never
// overwrites a newer cached one, but is still recorded durably.
func (s *TrackingService) Report(ctx context.Context, sample domain.PositionSample) (*domain.PositionSample, error) {
	if sample.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if err := geo.ValidatePoint(geo.Point{Lat: sample.Lat, Lng: sample.Lng}); err != nil {
		return nil, err
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = s.now()
	}

	driver, err := s.store.Drivers().GetByID(ctx, sample.DriverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.DependencyUnavailableError{Dependency: "store", Err: err}
	}
	if driver.Status == domain.DriverStatusOffline {
		return nil, ErrDriverUnavailable
	}

	// First report after login flips the driver to dispatchable.
	if driver.Status == domain.DriverStatusLoggedIn {
		if err := s.store.Drivers().UpdateStatus(ctx, driver.ID, domain.DriverStatusOnline); err != nil {
			return nil, &domain.DependencyUnavailableError{Dependency: "store", Err: err}
		}
		driver.Status = domain.DriverStatusOnline
	}
	sample.Status = driver.Status
	if driver.CurrentDeliveryID != "" {
		sample.DeliveryID = driver.CurrentDeliveryID
	}

	fresh := s.cachePosition(ctx, sample)

	if err := s.store.Drivers().UpdatePosition(ctx, driver.ID, sample.Lat, sample.Lng, sample.RecordedAt); err != nil {
		s.log.Warn().Str("driver_id", driver.ID).Err(err).Msg("driver position update failed")
	}

	s.enqueueHistory(sample)

	if fresh && sample.DeliveryID != "" {
		s.publishTrack(ctx, sample)
	}

	return &sample, nil
}

// cachePosition writes the sample into the location cache under a per-driver
// lock, gated on RecordedAt so late arrivals do not regress the live view.
// Reports whether the sample became the current position.
func (s *TrackingService) cachePosition(ctx context.Context, sample domain.PositionSample) bool {
	mu := s.stripe(sample.DriverID)
	mu.Lock()
	defer mu.Unlock()

	key := driverPositionKey(sample.DriverID)
	current, err := getPosition(ctx, s.locations, key)
	if err == nil && !current.RecordedAt.Before(sample.RecordedAt) {
		return false
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Str("driver_id", sample.DriverID).Err(err).Msg("position cache read failed")
	}

	if err := putPosition(ctx, s.locations, key, &sample, s.cfg.PositionTTL); err != nil {
		s.log.Warn().Str("driver_id", sample.DriverID).Err(err).Msg("position cache write failed")
		return false
	}
	if sample.DeliveryID != "" {
		if err := putPosition(ctx, s.locations, deliveryTrackKey(sample.DeliveryID), &sample, s.cfg.PositionTTL); err != nil {
			s.log.Warn().Str("delivery_id", sample.DeliveryID).Err(err).Msg("track cache write failed")
		}
	}
	return true
}

// enqueueHistory hands the sample to the batch writer. A full buffer drops
// the sample rather than stalling the ingest path.
func (s *TrackingService) enqueueHistory(sample domain.PositionSample) {
	select {
	case s.writeCh <- sample:
	default:
		s.log.Warn().Str("driver_id", sample.DriverID).Msg("history buffer full, sample dropped")
	}
}

func (s *TrackingService) publishTrack(ctx context.Context, sample domain.PositionSample) {
	if err := s.publisher.Publish(ctx, realtime.DeliveryTopic(sample.DeliveryID), "position", sample); err != nil {
		s.log.Warn().Str("delivery_id", sample.DeliveryID).Err(err).Msg("position publish failed")
	}
}

func (s *TrackingService) writeLoop() {
	defer s.writeWG.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*domain.PositionSample, 0, s.cfg.WriteBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.store.Positions().AppendBatch(ctx, batch); err != nil {
			s.log.Error().Int("samples", len(batch)).Err(err).Msg("history batch write failed")
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case sample := <-s.writeCh:
			smp := sample
			batch = append(batch, &smp)
			if len(batch) >= s.cfg.WriteBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			// Drain whatever made it into the channel before shutdown.
			for {
				select {
				case sample := <-s.writeCh:
					smp := sample
					batch = append(batch, &smp)
					if len(batch) >= s.cfg.WriteBatch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// DriverPosition returns the driver's most recent position, preferring the
// cache and falling back to durable history.
func (s *TrackingService) DriverPosition(ctx context.Context, driverID string) (*domain.PositionSample, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	sample, err := getPosition(ctx, s.locations, driverPositionKey(driverID))
	if err == nil {
		return sample, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Str("driver_id", driverID).Err(err).Msg("position cache read failed")
	}

	sample, err = s.store.Positions().LatestByDriver(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.DependencyUnavailableError{Dependency: "store", Err: err}
	}
	return sample, nil
}

// deliveryTrackLimit caps how much history a single track read returns.
const deliveryTrackLimit = 200

// DeliveryTrack returns the live position, if any, plus the recorded trail
// for a delivery, newest first.
func (s *TrackingService) DeliveryTrack(ctx context.Context, deliveryID string) (*domain.PositionSample, []*domain.PositionSample, error) {
	if deliveryID == "" {
		return nil, nil, ErrInvalidDeliveryID
	}

	var live *domain.PositionSample
	sample, err := getPosition(ctx, s.locations, deliveryTrackKey(deliveryID))
	if err == nil {
		live = sample
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Str("delivery_id", deliveryID).Err(err).Msg("track cache read failed")
	}

	history, err := s.store.Positions().ListByDelivery(ctx, deliveryID, deliveryTrackLimit)
	if err != nil {
		return live, nil, &domain.DependencyUnavailableError{Dependency: "store", Err: err}
	}
	return live, history, nil
}

// RunRetention periodically prunes position history past the retention
// window until ctx is cancelled.
func (s *TrackingService) RunRetention(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.now().Add(-s.cfg.Retention)
			deleted, err := s.store.Positions().DeleteOlderThan(ctx, cutoff)
			if err != nil {
				s.log.Error().Err(err).Msg("position retention prune failed")
				continue
			}
			if deleted > 0 {
				s.log.Info().Int64("deleted", deleted).Msg("pruned position history")
			}
		}
	}
}
