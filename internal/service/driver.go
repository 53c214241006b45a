package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courier/internal/cache"
	"courier/internal/domain"
	"courier/internal/repository"
)

// DriverService handles driver registration and presence.
type DriverService struct {
	store     repository.Store
	locations cache.Store
	log       zerolog.Logger
}

// NewDriverService creates a new DriverService.
func NewDriverService(store repository.Store, locations cache.Store, log zerolog.Logger) *DriverService {
	return &DriverService{store: store, locations: locations, log: log}
}

// RegisterDriverRequest contains the parameters for registering a driver.
type RegisterDriverRequest struct {
	Name         string
	Phone        string
	VehicleClass domain.VehicleClass
}

// RegisterDriver creates a new, unverified, offline driver.
func (s *DriverService) RegisterDriver(ctx context.Context, req RegisterDriverRequest) (*domain.Driver, error) {
	if req.Name == "" {
		return nil, domain.NewValidationError("name", "required")
	}
	if req.Phone == "" {
		return nil, domain.NewValidationError("phone", "required")
	}
	switch req.VehicleClass {
	case domain.VehicleClassBike, domain.VehicleClassCar, domain.VehicleClassVan, domain.VehicleClassTruck:
	default:
		return nil, domain.NewValidationError("vehicle_class", "must be one of BIKE, CAR, VAN, TRUCK")
	}

	if _, err := s.store.Drivers().GetByPhone(ctx, req.Phone); err == nil {
		return nil, domain.NewValidationError("phone", "already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	driver := &domain.Driver{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Phone:        req.Phone,
		Status:       domain.DriverStatusOffline,
		VehicleClass: req.VehicleClass,
	}
	if err := s.store.Drivers().Create(ctx, driver); err != nil {
		return nil, err
	}
	return driver, nil
}

// ListAvailableDrivers returns drivers currently eligible for new work.
func (s *DriverService) ListAvailableDrivers(ctx context.Context) ([]*domain.Driver, error) {
	return s.store.Drivers().ListAvailable(ctx)
}

// GetDriver retrieves a driver by ID.
func (s *DriverService) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	return s.store.Drivers().GetByID(ctx, driverID)
}

// VerifyDriver marks a driver's documents as checked, making them eligible
// for dispatch.
func (s *DriverService) VerifyDriver(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		driver, err := tx.Drivers().GetByID(ctx, driverID)
		if err != nil {
			return err
		}
		driver.Verified = true
		return tx.Drivers().Update(ctx, driver)
	})
}

// Login moves an offline driver to LOGGED_IN. The first position report
// after login promotes them to ONLINE.
func (s *DriverService) Login(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}

	driver, err := s.store.Drivers().GetByID(ctx, driverID)
	if err != nil {
		return err
	}
	if driver.Status == domain.DriverStatusBusy {
		return ErrDriverUnavailable
	}
	return s.store.Drivers().UpdateStatus(ctx, driverID, domain.DriverStatusLoggedIn)
}

// GoOnline marks a logged-in driver dispatchable.
func (s *DriverService) GoOnline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}

	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		driver, err := tx.Drivers().GetByID(ctx, driverID)
		if err != nil {
			return err
		}
		if driver.Status == domain.DriverStatusBusy || driver.Status == domain.DriverStatusOffline {
			return ErrDriverUnavailable
		}
		driver.Status = domain.DriverStatusOnline
		driver.IsAvailable = true
		return tx.Drivers().Update(ctx, driver)
	})
}

// GoOffline takes a driver out of dispatch and drops their cached position.
// A driver holding an active delivery cannot go offline.
func (s *DriverService) GoOffline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		driver, err := tx.Drivers().GetByID(ctx, driverID)
		if err != nil {
			return err
		}
		if driver.Status == domain.DriverStatusBusy || driver.CurrentDeliveryID != "" {
			return ErrDriverUnavailable
		}
		driver.Status = domain.DriverStatusOffline
		driver.IsAvailable = false
		return tx.Drivers().Update(ctx, driver)
	})
	if err != nil {
		return err
	}

	if err := s.locations.Delete(ctx, driverPositionKey(driverID)); err != nil {
		s.log.Warn().Str("driver_id", driverID).Err(err).Msg("position cache delete failed")
	}
	return nil
}
