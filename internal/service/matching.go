package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/cache"
	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/realtime"
	"courier/internal/repository"
)

// Composite score weights. They sum to 1.0.
const (
	weightDistance   = 0.4
	weightRating     = 0.3
	weightFreshness  = 0.2
	weightExperience = 0.1
)

// neutralRatingScore is used for drivers that have not been rated yet.
const neutralRatingScore = 70.0

// MatchOptions narrows a candidate search.
type MatchOptions struct {
	VehicleClass   domain.VehicleClass // empty means any class
	MaxDistanceKm  float64             // 0 uses the configured default
	MaxCandidates  int                 // 0 uses the configured default
	ExcludeDrivers []string
}

// ScoreBreakdown holds the normalized (0-100) per-factor sub-scores.
type ScoreBreakdown struct {
	Distance   float64 `json:"distance"`
	Rating     float64 `json:"rating"`
	Freshness  float64 `json:"freshness"`
	Experience float64 `json:"experience"`
}

// Candidate is a driver considered for a specific delivery. Transient; never
// persisted.
type Candidate struct {
	Driver     *domain.Driver
	DistanceKm float64
	Score      float64
	Breakdown  ScoreBreakdown
}

// MatchResult is the ranked candidate list, with a reason when the search
// degraded to an empty or partial result.
type MatchResult struct {
	Candidates []Candidate
	Reason     string
}

// MatchingService finds and ranks eligible nearby drivers. It is a pure
// read/score function over the location cache and the durable store, plus a
// notify helper; assignment itself belongs to the delivery service.
type MatchingService struct {
	locations     cache.Store
	store         repository.Store
	notifications *NotificationService
	publisher     realtime.Publisher
	cfg           config.DispatchConfig
	log           zerolog.Logger
	now           func() time.Time
}

// NewMatchingService creates a new MatchingService.
func NewMatchingService(
	locations cache.Store,
	store repository.Store,
	notifications *NotificationService,
	publisher realtime.Publisher,
	cfg config.DispatchConfig,
	log zerolog.Logger,
) *MatchingService {
	return &MatchingService{
		locations:     locations,
		store:         store,
		notifications: notifications,
		publisher:     publisher,
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

// FindCandidates returns eligible drivers near pickup, ranked by composite
// score. When both the cache and the durable store are unreachable it
// returns an empty list with a reason instead of an error: matching feeds a
// best-effort notification step, not the delivery's correctness-critical
// path.
func (s *MatchingService) FindCandidates(ctx context.Context, pickup geo.Point, opts MatchOptions) (*MatchResult, error) {
	if err := geo.ValidatePoint(pickup); err != nil {
		return nil, err
	}

	maxDistance := opts.MaxDistanceKm
	if maxDistance <= 0 {
		maxDistance = s.cfg.MaxDistanceKm
	}
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = s.cfg.MaxCandidates
	}

	samples, cacheErr := s.cachedPositions(ctx)
	if cacheErr != nil {
		s.log.Warn().Err(cacheErr).Msg("location cache unreadable, matching from durable store only")
	}

	var storeErr error
	if len(samples) < s.cfg.MinCacheHits {
		storeErr = s.supplementFromStore(ctx, samples)
	}

	if len(samples) == 0 {
		if cacheErr != nil && storeErr != nil {
			return &MatchResult{Reason: "location cache and driver store unavailable"}, nil
		}
		return &MatchResult{Reason: "no recently active drivers"}, nil
	}

	excluded := make(map[string]bool, len(opts.ExcludeDrivers))
	for _, id := range opts.ExcludeDrivers {
		excluded[id] = true
	}

	staleCutoff := s.now().Add(-2 * s.cfg.ReportInterval)

	var candidates []Candidate
	for driverID, sample := range samples {
		if excluded[driverID] {
			continue
		}
		// Stale position disqualifies outright rather than just lowering
		// the score.
		if sample.RecordedAt.Before(staleCutoff) {
			continue
		}

		driver, err := s.store.Drivers().GetByID(ctx, driverID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				s.log.Warn().Str("driver_id", driverID).Err(err).Msg("driver lookup failed during matching")
			}
			continue
		}

		if !s.eligible(driver, opts.VehicleClass) {
			continue
		}

		distance := haversineOrSkip(pickup, sample)
		if distance < 0 || distance > maxDistance {
			continue
		}

		candidate := Candidate{
			Driver:     driver,
			DistanceKm: distance,
		}
		candidate.Breakdown = s.scoreBreakdown(distance, driver, s.now().Sub(sample.RecordedAt))
		candidate.Score = weightDistance*candidate.Breakdown.Distance +
			weightRating*candidate.Breakdown.Rating +
			weightFreshness*candidate.Breakdown.Freshness +
			weightExperience*candidate.Breakdown.Experience

		candidates = append(candidates, candidate)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	result := &MatchResult{Candidates: candidates}
	if len(candidates) == 0 {
		result.Reason = "no eligible drivers in range"
	}
	return result, nil
}

// NotifyCandidates fans a delivery offer out to the ranked candidates over
// the notification and real-time layers. Failures are logged per driver and
// do not stop the fan-out.
func (s *MatchingService) NotifyCandidates(ctx context.Context, delivery *domain.Delivery, candidates []Candidate) {
	for _, c := range candidates {
		if err := s.notifications.NotifyDeliveryOffer(ctx, delivery, c.Driver, c.DistanceKm); err != nil {
			s.log.Warn().Str("driver_id", c.Driver.ID).Err(err).Msg("offer notification failed")
		}
		err := s.publisher.Publish(ctx, realtime.DriverTopic(c.Driver.ID), "delivery_offer", map[string]any{
			"delivery_id":    delivery.ID,
			"pickup_lat":     delivery.PickupLat,
			"pickup_lng":     delivery.PickupLng,
			"estimated_fare": delivery.EstimatedFare,
			"distance_km":    c.DistanceKm,
		})
		if err != nil {
			s.log.Warn().Str("driver_id", c.Driver.ID).Err(err).Msg("offer publish failed")
		}
	}
}

// cachedPositions reads all recently-active driver positions from the cache.
func (s *MatchingService) cachedPositions(ctx context.Context) (map[string]*domain.PositionSample, error) {
	samples := make(map[string]*domain.PositionSample)

	keys, err := s.locations.KeysWithPrefix(ctx, driverPositionPrefix)
	if err != nil {
		return samples, err
	}

	for _, key := range keys {
		sample, err := getPosition(ctx, s.locations, key)
		if err != nil {
			if !errors.Is(err, cache.ErrMiss) {
				s.log.Debug().Str("key", key).Err(err).Msg("unreadable cached position")
			}
			continue
		}
		id := sample.DriverID
		if id == "" {
			id = strings.TrimPrefix(key, driverPositionPrefix)
		}
		samples[id] = sample
	}
	return samples, nil
}

// supplementFromStore fills samples from the durable driver records, never
// overwriting a cache-sourced (fresher) entry.
func (s *MatchingService) supplementFromStore(ctx context.Context, samples map[string]*domain.PositionSample) error {
	drivers, err := s.store.Drivers().ListAvailable(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("durable driver listing failed during matching")
		return err
	}

	for _, driver := range drivers {
		if _, ok := samples[driver.ID]; ok {
			continue
		}
		if driver.LastSeenAt.IsZero() {
			continue
		}
		samples[driver.ID] = &domain.PositionSample{
			DriverID:   driver.ID,
			Lat:        driver.LastLat,
			Lng:        driver.LastLng,
			Status:     driver.Status,
			RecordedAt: driver.LastSeenAt,
		}
	}
	return nil
}

func (s *MatchingService) eligible(driver *domain.Driver, class domain.VehicleClass) bool {
	if driver.Status != domain.DriverStatusOnline || !driver.IsAvailable || !driver.Verified {
		return false
	}
	if driver.CurrentDeliveryID != "" {
		return false
	}
	if driver.RatingCount > 0 && driver.Rating < s.cfg.MinRating {
		return false
	}
	if class != "" && driver.VehicleClass != class {
		return false
	}
	return true
}

// scoreBreakdown computes the 0-100 sub-scores. Distance and experience use
// fixed brackets, rating is a linear 0-5 to 0-100 scale, freshness penalizes
// aging position samples.
func (s *MatchingService) scoreBreakdown(distanceKm float64, driver *domain.Driver, age time.Duration) ScoreBreakdown {
	var b ScoreBreakdown

	switch {
	case distanceKm <= 1:
		b.Distance = 100
	case distanceKm <= 3:
		b.Distance = 80
	case distanceKm <= 5:
		b.Distance = 60
	case distanceKm <= 10:
		b.Distance = 40
	default:
		b.Distance = 20
	}

	if driver.RatingCount == 0 {
		b.Rating = neutralRatingScore
	} else {
		b.Rating = driver.Rating * 20
	}

	switch {
	case age <= time.Minute:
		b.Freshness = 100
	case age <= 2*time.Minute:
		b.Freshness = 80
	case age <= 4*time.Minute:
		b.Freshness = 50
	default:
		b.Freshness = 20
	}

	switch {
	case driver.CompletedDeliveries >= 500:
		b.Experience = 100
	case driver.CompletedDeliveries >= 200:
		b.Experience = 80
	case driver.CompletedDeliveries >= 50:
		b.Experience = 60
	case driver.CompletedDeliveries >= 10:
		b.Experience = 40
	default:
		b.Experience = 20
	}

	return b
}

func haversineOrSkip(pickup geo.Point, sample *domain.PositionSample) float64 {
	d, err := geo.DistanceKm(pickup, geo.Point{Lat: sample.Lat, Lng: sample.Lng})
	if err != nil {
		return -1
	}
	return d
}
