package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/cache"
	"courier/internal/domain"
	"courier/internal/service"
)

func newDriverService(t *testing.T, store *MockStore, locations cache.Store) *service.DriverService {
	t.Helper()
	if locations == nil {
		mem := cache.NewMemoryStore(0)
		t.Cleanup(mem.Close)
		locations = mem
	}
	return service.NewDriverService(store, locations, zerolog.Nop())
}

func TestDriver_RegisterCreatesOfflineUnverified(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	svc := newDriverService(t, store, nil)

	driver, err := svc.RegisterDriver(context.Background(), service.RegisterDriverRequest{
		Name:         "Ada",
		Phone:        "08012345678",
		VehicleClass: domain.VehicleClassBike,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if driver.ID == "" {
		t.Error("expected generated driver id")
	}
	if driver.Status != domain.DriverStatusOffline || driver.Verified {
		t.Errorf("expected offline unverified driver, got status=%s verified=%v", driver.Status, driver.Verified)
	}
}

func TestDriver_RegisterRejectsDuplicatePhone(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	existing := onlineDriver("driver-1")
	existing.Phone = "08012345678"
	store.DriverRepo.AddDriver(existing)

	svc := newDriverService(t, store, nil)

	_, err := svc.RegisterDriver(context.Background(), service.RegisterDriverRequest{
		Name:         "Ada",
		Phone:        "08012345678",
		VehicleClass: domain.VehicleClassBike,
	})
	var validation *domain.ValidationError
	if !errors.As(err, &validation) || validation.Field != "phone" {
		t.Errorf("expected phone validation error, got %v", err)
	}
}

func TestDriver_RegisterRejectsBadVehicleClass(t *testing.T) {
	t.Parallel()

	svc := newDriverService(t, NewMockStore(), nil)

	_, err := svc.RegisterDriver(context.Background(), service.RegisterDriverRequest{
		Name:         "Ada",
		Phone:        "08012345678",
		VehicleClass: "SCOOTER",
	})
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDriver_LifecycleLoginOnlineOffline(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Status = domain.DriverStatusOffline
	driver.IsAvailable = false
	store.DriverRepo.AddDriver(driver)

	svc := newDriverService(t, store, nil)
	ctx := context.Background()

	if err := svc.Login(ctx, "driver-1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if got := store.DriverRepo.GetDriver("driver-1").Status; got != domain.DriverStatusLoggedIn {
		t.Fatalf("expected LOGGED_IN after login, got %s", got)
	}

	if err := svc.GoOnline(ctx, "driver-1"); err != nil {
		t.Fatalf("go online failed: %v", err)
	}
	got := store.DriverRepo.GetDriver("driver-1")
	if got.Status != domain.DriverStatusOnline || !got.IsAvailable {
		t.Fatalf("expected available ONLINE driver, got status=%s available=%v", got.Status, got.IsAvailable)
	}

	if err := svc.GoOffline(ctx, "driver-1"); err != nil {
		t.Fatalf("go offline failed: %v", err)
	}
	got = store.DriverRepo.GetDriver("driver-1")
	if got.Status != domain.DriverStatusOffline || got.IsAvailable {
		t.Errorf("expected unavailable OFFLINE driver, got status=%s available=%v", got.Status, got.IsAvailable)
	}
}

func TestDriver_BusyDriverCannotChangeAvailability(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Status = domain.DriverStatusBusy
	driver.CurrentDeliveryID = "delivery-1"
	store.DriverRepo.AddDriver(driver)

	svc := newDriverService(t, store, nil)
	ctx := context.Background()

	if err := svc.Login(ctx, "driver-1"); !errors.Is(err, service.ErrDriverUnavailable) {
		t.Errorf("login: expected ErrDriverUnavailable, got %v", err)
	}
	if err := svc.GoOnline(ctx, "driver-1"); !errors.Is(err, service.ErrDriverUnavailable) {
		t.Errorf("go online: expected ErrDriverUnavailable, got %v", err)
	}
	if err := svc.GoOffline(ctx, "driver-1"); !errors.Is(err, service.ErrDriverUnavailable) {
		t.Errorf("go offline: expected ErrDriverUnavailable, got %v", err)
	}
	if got := store.DriverRepo.GetDriver("driver-1").Status; got != domain.DriverStatusBusy {
		t.Errorf("driver status changed despite rejections: %s", got)
	}
}

func TestDriver_GoOfflineDropsCachedPosition(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	store.DriverRepo.AddDriver(driver)

	locations := cache.NewMemoryStore(0)
	t.Cleanup(locations.Close)
	cacheDriverPosition(t, locations, "driver-1", 6.52, 3.37, time.Now())

	svc := newDriverService(t, store, locations)

	if err := svc.GoOffline(context.Background(), "driver-1"); err != nil {
		t.Fatalf("go offline failed: %v", err)
	}
	if _, err := locations.Get(context.Background(), "position:driver:driver-1"); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("expected cached position removed, got %v", err)
	}
}

func TestDriver_VerifyMarksEligible(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Verified = false
	store.DriverRepo.AddDriver(driver)

	svc := newDriverService(t, store, nil)

	if err := svc.VerifyDriver(context.Background(), "driver-1"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !store.DriverRepo.GetDriver("driver-1").Verified {
		t.Error("expected driver marked verified")
	}
}
