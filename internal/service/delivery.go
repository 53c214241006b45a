package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courier/internal/cache"
	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/realtime"
	"courier/internal/repository"
)

// driverEarningsShare is the fraction of the actual fare credited to the
// driver on completion.
const driverEarningsShare = 0.8

// allowedTransitions is the legality table. A target absent from the current
// status's set is an invalid transition, no matter the caller.
var allowedTransitions = map[domain.DeliveryStatus][]domain.DeliveryStatus{
	domain.DeliveryStatusPending: {
		domain.DeliveryStatusAccepted,
		domain.DeliveryStatusCancelled,
		domain.DeliveryStatusDisputed,
	},
	domain.DeliveryStatusAccepted: {
		domain.DeliveryStatusDriverEnRoute,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusDriverEnRoute: {
		domain.DeliveryStatusArrivedAtPickup,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusArrivedAtPickup: {
		domain.DeliveryStatusInTransit,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusInTransit: {
		domain.DeliveryStatusArrivedAtDropoff,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusArrivedAtDropoff: {
		domain.DeliveryStatusDelivered,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusDelivered: {
		domain.DeliveryStatusCompleted,
		domain.DeliveryStatusDisputed,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusDisputed: {
		domain.DeliveryStatusCompleted,
		domain.DeliveryStatusCancelled,
	},
	domain.DeliveryStatusCompleted: {},
	domain.DeliveryStatusCancelled: {},
}

func transitionAllowed(from, to domain.DeliveryStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionContext carries the per-transition inputs that preconditions
// check and the applied fields come from.
type TransitionContext struct {
	// DriverID identifies the accepting driver. Required for ACCEPTED.
	DriverID string
	// ActorID names who triggered the transition ("system" for sweeps).
	ActorID string
	// Reason is the cancellation or dispute reason.
	Reason string
	// PickupConfirmed must be set for IN_TRANSIT.
	PickupConfirmed bool
	// PaymentConfirmed must be set for COMPLETED.
	PaymentConfirmed bool
}

// MatcherInterface is the candidate search contract the delivery service
// depends on. Allows mock implementations in tests.
type MatcherInterface interface {
	FindCandidates(ctx context.Context, pickup geo.Point, opts MatchOptions) (*MatchResult, error)
	NotifyCandidates(ctx context.Context, delivery *domain.Delivery, candidates []Candidate)
}

// Ensure MatchingService implements MatcherInterface.
var _ MatcherInterface = (*MatchingService)(nil)

// DeliveryService owns the authoritative delivery lifecycle and the coupled
// driver availability state. Every durable mutation of a delivery flows
// through here.
type DeliveryService struct {
	store         repository.Store
	matching      MatcherInterface
	fares         *FareEngine
	notifications *NotificationService
	publisher     realtime.Publisher
	locations     cache.Store
	cfg           config.DispatchConfig
	tracking      config.TrackingConfig
	log           zerolog.Logger
	now           func() time.Time

	effects map[effectKind]effectHandler
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(
	store repository.Store,
	matching MatcherInterface,
	fares *FareEngine,
	notifications *NotificationService,
	publisher realtime.Publisher,
	locations cache.Store,
	cfg config.DispatchConfig,
	tracking config.TrackingConfig,
	log zerolog.Logger,
) *DeliveryService {
	s := &DeliveryService{
		store:         store,
		matching:      matching,
		fares:         fares,
		notifications: notifications,
		publisher:     publisher,
		locations:     locations,
		cfg:           cfg,
		tracking:      tracking,
		log:           log,
		now:           time.Now,
	}
	s.effects = s.effectHandlers()
	return s
}

// CreateDeliveryRequest contains the parameters for creating a delivery.
type CreateDeliveryRequest struct {
	RiderID        string
	PickupLat      float64
	PickupLng      float64
	PickupAddress  string
	DropoffLat     float64
	DropoffLng     float64
	DropoffAddress string
	Package        domain.Package
	VehicleClass   domain.VehicleClass
	PaymentMethod  domain.PaymentMethod
}

// CreateDeliveryResponse contains the created delivery and its quote.
type CreateDeliveryResponse struct {
	Delivery *domain.Delivery
	Quote    *FareQuote
}

// CreateDelivery validates the request, quotes the fare, persists the
// delivery in PENDING and kicks off an asynchronous matching attempt.
func (s *DeliveryService) CreateDelivery(ctx context.Context, req CreateDeliveryRequest) (*CreateDeliveryResponse, error) {
	if req.RiderID == "" {
		return nil, ErrInvalidRiderID
	}

	pickup := geo.Point{Lat: req.PickupLat, Lng: req.PickupLng}
	dropoff := geo.Point{Lat: req.DropoffLat, Lng: req.DropoffLng}
	if err := geo.ValidatePoint(pickup); err != nil {
		return nil, err
	}
	if err := geo.ValidatePoint(dropoff); err != nil {
		return nil, err
	}

	class := req.VehicleClass
	if class == "" {
		class = domain.VehicleClassBike
	}
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCash
	}

	quote, err := s.fares.Estimate(pickup, dropoff, class, req.Package, method)
	if err != nil {
		return nil, err
	}

	delivery := &domain.Delivery{
		ID:             uuid.New().String(),
		RiderID:        req.RiderID,
		PickupLat:      req.PickupLat,
		PickupLng:      req.PickupLng,
		PickupAddress:  req.PickupAddress,
		DropoffLat:     req.DropoffLat,
		DropoffLng:     req.DropoffLng,
		DropoffAddress: req.DropoffAddress,
		Package:        req.Package,
		VehicleClass:   class,
		EstimatedFare:  quote.Total,
		PaymentMethod:  method,
		PaymentStatus:  domain.PaymentStatusPending,
		Status:         domain.DeliveryStatusPending,
		CreatedAt:      s.now(),
	}

	if err := s.store.Deliveries().Create(ctx, delivery); err != nil {
		return nil, err
	}

	// Matching is best-effort and must not delay the rider's response.
	go s.matchAndNotify(delivery)

	return &CreateDeliveryResponse{Delivery: delivery, Quote: quote}, nil
}

func (s *DeliveryService) matchAndNotify(delivery *domain.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := s.matching.FindCandidates(ctx, geo.Point{Lat: delivery.PickupLat, Lng: delivery.PickupLng}, MatchOptions{
		VehicleClass: delivery.VehicleClass,
	})
	if err != nil {
		s.log.Warn().Str("delivery_id", delivery.ID).Err(err).Msg("matching failed")
		return
	}
	if len(result.Candidates) == 0 {
		s.log.Info().Str("delivery_id", delivery.ID).Str("reason", result.Reason).Msg("no candidates for delivery")
		return
	}
	s.matching.NotifyCandidates(ctx, delivery, result.Candidates)
}

// GetDelivery retrieves a delivery by ID.
func (s *DeliveryService) GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}
	return s.store.Deliveries().GetByID(ctx, deliveryID)
}

// Accept applies the contested PENDING to ACCEPTED transition on behalf of a
// driver. Exactly one of two concurrent acceptors succeeds; the loser gets
// ErrDeliveryUnavailable.
func (s *DeliveryService) Accept(ctx context.Context, deliveryID, driverID string) (*domain.Delivery, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.Transition(ctx, deliveryID, domain.DeliveryStatusAccepted, TransitionContext{
		DriverID: driverID,
		ActorID:  driverID,
	})
}

// Reject records a driver's rejection and retries matching, excluding the
// rejecting driver.
func (s *DeliveryService) Reject(ctx context.Context, deliveryID, driverID, reason string) error {
	if deliveryID == "" {
		return ErrInvalidDeliveryID
	}
	if driverID == "" {
		return ErrInvalidDriverID
	}

	delivery, err := s.store.Deliveries().GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery.Status != domain.DeliveryStatusPending {
		return ErrDeliveryUnavailable
	}

	s.log.Info().Str("delivery_id", deliveryID).Str("driver_id", driverID).Str("reason", reason).Msg("delivery offer rejected")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := s.matching.FindCandidates(ctx, geo.Point{Lat: delivery.PickupLat, Lng: delivery.PickupLng}, MatchOptions{
			VehicleClass:   delivery.VehicleClass,
			ExcludeDrivers: []string{driverID},
		})
		if err != nil || len(result.Candidates) == 0 {
			return
		}
		s.matching.NotifyCandidates(ctx, delivery, result.Candidates)
	}()

	return nil
}

// Transition validates and applies one lifecycle step: legality table,
// per-target preconditions, atomic conditional write with the driver-state
// coupling, then best-effort side effects.
func (s *DeliveryService) Transition(ctx context.Context, deliveryID string, target domain.DeliveryStatus, tctx TransitionContext) (*domain.Delivery, error) {
	if deliveryID == "" {
		return nil, ErrInvalidDeliveryID
	}

	delivery, err := s.store.Deliveries().GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(delivery.Status, target) {
		return nil, &domain.InvalidTransitionError{From: delivery.Status, To: target}
	}

	if err := s.checkPreconditions(delivery, target, tctx); err != nil {
		return nil, err
	}

	expected := delivery.Status
	updated := *delivery
	s.apply(&updated, target, tctx)

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := s.coupleDriver(ctx, tx, &updated, target, tctx); err != nil {
			return err
		}
		return tx.Deliveries().UpdateIfStatus(ctx, &updated, expected)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Someone else moved the delivery first.
			return nil, ErrDeliveryUnavailable
		}
		return nil, err
	}

	s.runEffects(ctx, &updated, target, tctx)

	return &updated, nil
}

// checkPreconditions enforces the contextual requirements of each target
// status. Violations are ValidationErrors, distinct from table illegality.
func (s *DeliveryService) checkPreconditions(delivery *domain.Delivery, target domain.DeliveryStatus, tctx TransitionContext) error {
	switch target {
	case domain.DeliveryStatusAccepted:
		if tctx.DriverID == "" {
			return domain.NewValidationError("driver_id", "required to accept a delivery")
		}
	case domain.DeliveryStatusDriverEnRoute, domain.DeliveryStatusArrivedAtPickup,
		domain.DeliveryStatusArrivedAtDropoff, domain.DeliveryStatusDelivered:
		if tctx.DriverID != "" && tctx.DriverID != delivery.DriverID {
			return ErrNotDeliveryDriver
		}
	case domain.DeliveryStatusInTransit:
		if tctx.DriverID != "" && tctx.DriverID != delivery.DriverID {
			return ErrNotDeliveryDriver
		}
		if !tctx.PickupConfirmed {
			return domain.NewValidationError("pickup_confirmed", "pickup must be confirmed before transit")
		}
	case domain.DeliveryStatusCompleted:
		if !tctx.PaymentConfirmed && delivery.PaymentStatus != domain.PaymentStatusPaid {
			return domain.NewValidationError("payment_confirmed", "payment must be confirmed to complete")
		}
	case domain.DeliveryStatusDisputed:
		if tctx.Reason == "" {
			return domain.NewValidationError("reason", "required to open a dispute")
		}
	case domain.DeliveryStatusCancelled:
		if tctx.ActorID == "" {
			return domain.NewValidationError("actor_id", "required to cancel")
		}
	}
	return nil
}

// apply writes the status, its timestamp and the status-specific fields onto
// the copy that will be persisted in one conditional write.
func (s *DeliveryService) apply(d *domain.Delivery, target domain.DeliveryStatus, tctx TransitionContext) {
	now := s.now()
	d.Status = target

	switch target {
	case domain.DeliveryStatusAccepted:
		d.DriverID = tctx.DriverID
		d.AcceptedAt = now
	case domain.DeliveryStatusInTransit:
		d.PickedUpAt = now
	case domain.DeliveryStatusDelivered:
		d.DeliveredAt = now
		d.ActualFare = d.EstimatedFare
	case domain.DeliveryStatusCompleted:
		d.CompletedAt = now
		if d.ActualFare == 0 {
			d.ActualFare = d.EstimatedFare
		}
		if tctx.PaymentConfirmed {
			d.PaymentStatus = domain.PaymentStatusPaid
		}
	case domain.DeliveryStatusCancelled:
		d.CancelledAt = now
		d.CancelledBy = tctx.ActorID
		d.CancelReason = tctx.Reason
	case domain.DeliveryStatusDisputed:
		d.DisputeReason = tctx.Reason
	}
}

// coupleDriver applies the driver-state side of a transition inside the same
// transaction as the delivery write, so a driver can never be left BUSY
// without a delivery or vice versa. Both sides are conditional writes: the
// claim's eligibility check and the release's ownership check live in the
// repository's WHERE clause, because a read-then-write here would let two
// transactions accepting different deliveries both observe the same driver
// as available.
func (s *DeliveryService) coupleDriver(ctx context.Context, tx repository.Store, d *domain.Delivery, target domain.DeliveryStatus, tctx TransitionContext) error {
	switch target {
	case domain.DeliveryStatusAccepted:
		err := tx.Drivers().ClaimDelivery(ctx, tctx.DriverID, d.ID)
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrStatusConflict) {
			return ErrDriverUnavailable
		}
		return err

	case domain.DeliveryStatusCompleted, domain.DeliveryStatusCancelled:
		if d.DriverID == "" {
			return nil
		}
		// A release that finds a newer assignment (a sweep racing a manual
		// transition) no-ops inside the repository.
		return tx.Drivers().ReleaseDelivery(ctx, d.DriverID, d.ID)
	}

	return nil
}

// RateDelivery folds a rider's rating of a completed delivery into the
// driver's running average.
func (s *DeliveryService) RateDelivery(ctx context.Context, deliveryID, riderID string, rating float64) error {
	if deliveryID == "" {
		return ErrInvalidDeliveryID
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	delivery, err := s.store.Deliveries().GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery.RiderID != riderID {
		return ErrNotDeliveryRider
	}
	if delivery.Status != domain.DeliveryStatusCompleted {
		return &domain.InvalidTransitionError{From: delivery.Status, To: domain.DeliveryStatusCompleted}
	}
	if delivery.DriverID == "" {
		return ErrDriverUnavailable
	}

	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		driver, err := tx.Drivers().GetByID(ctx, delivery.DriverID)
		if err != nil {
			return err
		}
		driver.AddRating(rating)
		return tx.Drivers().Update(ctx, driver)
	})
}

// RunSweeper periodically applies the timeout-driven auto-transitions until
// ctx is cancelled.
func (s *DeliveryService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one pass of the three auto-transitions. One item's failure
// is logged and does not block the rest of the pass.
func (s *DeliveryService) SweepOnce(ctx context.Context) {
	now := s.now()

	s.sweepStatus(ctx, domain.DeliveryStatusPending, now.Add(-s.cfg.DisputeTimeout),
		domain.DeliveryStatusDisputed, TransitionContext{
			ActorID: "system",
			Reason:  "no driver accepted within the dispute window",
		})

	s.sweepStatus(ctx, domain.DeliveryStatusAccepted, now.Add(-s.cfg.AcceptTimeout),
		domain.DeliveryStatusCancelled, TransitionContext{
			ActorID: "system",
			Reason:  "driver never started after accepting",
		})

	s.sweepStatus(ctx, domain.DeliveryStatusDelivered, now.Add(-s.cfg.SettleTimeout),
		domain.DeliveryStatusCompleted, TransitionContext{
			ActorID:          "system",
			PaymentConfirmed: true,
		})
}

func (s *DeliveryService) sweepStatus(ctx context.Context, from domain.DeliveryStatus, cutoff time.Time, target domain.DeliveryStatus, tctx TransitionContext) {
	stale, err := s.store.Deliveries().ListStatusOlderThan(ctx, from, cutoff)
	if err != nil {
		s.log.Error().Str("status", string(from)).Err(err).Msg("sweep listing failed")
		return
	}

	for _, delivery := range stale {
		if _, err := s.Transition(ctx, delivery.ID, target, tctx); err != nil {
			// A delivery that moved on since the listing no-ops here.
			var invalid *domain.InvalidTransitionError
			if errors.As(err, &invalid) || errors.Is(err, ErrDeliveryUnavailable) {
				continue
			}
			s.log.Warn().Str("delivery_id", delivery.ID).Str("target", string(target)).Err(err).Msg("sweep transition failed")
		}
	}
}
