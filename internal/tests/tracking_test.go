package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"courier/internal/cache"
	"courier/internal/config"
	"courier/internal/domain"
	"courier/internal/service"
)

func trackingConfig() config.TrackingConfig {
	return config.TrackingConfig{
		PositionTTL:     time.Minute,
		ArchiveInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
		WriteBuffer:     64,
		WriteBatch:      16,
		FlushInterval:   50 * time.Millisecond,
	}
}

func newTrackingService(t *testing.T, store *MockStore, locations cache.Store, publisher *MockPublisher) *service.TrackingService {
	t.Helper()
	if locations == nil {
		mem := cache.NewMemoryStore(0)
		t.Cleanup(mem.Close)
		locations = mem
	}
	if publisher == nil {
		publisher = NewMockPublisher()
	}
	return service.NewTrackingService(store, locations, publisher, trackingConfig(), zerolog.Nop())
}

func sampleAt(driverID string, lat, lng float64, recordedAt time.Time) domain.PositionSample {
	return domain.PositionSample{
		DriverID:   driverID,
		Lat:        lat,
		Lng:        lng,
		RecordedAt: recordedAt,
	}
}

// ──────────────────────────────────────────────
// INGEST
// ──────────────────────────────────────────────

func TestTracking_ReportCachesAndFlushesHistory(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.DriverRepo.AddDriver(onlineDriver("driver-1"))

	locations := cache.NewMemoryStore(0)
	t.Cleanup(locations.Close)

	svc := newTrackingService(t, store, locations, nil)
	svc.Start()

	now := time.Now()
	if _, err := svc.Report(context.Background(), sampleAt("driver-1", 6.5244, 3.3792, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The live view is served immediately, ahead of the batch writer.
	live, err := svc.DriverPosition(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("position read failed: %v", err)
	}
	if live.Lat != 6.5244 || live.Lng != 3.3792 {
		t.Errorf("unexpected cached position: %f,%f", live.Lat, live.Lng)
	}

	// The durable driver row gets the same position synchronously.
	driver := store.DriverRepo.GetDriver("driver-1")
	if driver.LastLat != 6.5244 || driver.LastLng != 3.3792 {
		t.Errorf("driver row not updated: %f,%f", driver.LastLat, driver.LastLng)
	}

	// Stop drains the buffer, so the sample must be durable afterwards.
	svc.Stop()
	if got := store.PositionRepo.CountSamples(); got != 1 {
		t.Errorf("expected 1 durable sample after flush, got %d", got)
	}
}

func TestTracking_OutOfOrderSampleDoesNotRegressLiveView(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.DriverRepo.AddDriver(onlineDriver("driver-1"))
	svc := newTrackingService(t, store, nil, nil)
	svc.Start()

	now := time.Now()
	if _, err := svc.Report(context.Background(), sampleAt("driver-1", 6.60, 3.40, now)); err != nil {
		t.Fatalf("fresh report failed: %v", err)
	}
	// A delayed sample from a minute earlier arrives afterwards.
	if _, err := svc.Report(context.Background(), sampleAt("driver-1", 6.50, 3.30, now.Add(-time.Minute))); err != nil {
		t.Fatalf("late report failed: %v", err)
	}

	live, err := svc.DriverPosition(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("position read failed: %v", err)
	}
	if live.Lat != 6.60 {
		t.Errorf("late sample regressed the live view: lat=%f", live.Lat)
	}

	// Both samples still land in history.
	svc.Stop()
	if got := store.PositionRepo.CountSamples(); got != 2 {
		t.Errorf("expected both samples durable, got %d", got)
	}
}

func TestTracking_FirstReportPromotesLoggedInDriver(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Status = domain.DriverStatusLoggedIn
	store.DriverRepo.AddDriver(driver)

	svc := newTrackingService(t, store, nil, nil)

	normalized, err := svc.Report(context.Background(), sampleAt("driver-1", 6.52, 3.37, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Status != domain.DriverStatusOnline {
		t.Errorf("expected normalized sample to carry ONLINE, got %s", normalized.Status)
	}

	got := store.DriverRepo.GetDriver("driver-1")
	if got.Status != domain.DriverStatusOnline {
		t.Errorf("expected driver promoted to ONLINE, got %s", got.Status)
	}
}

func TestTracking_RejectsOfflineDriver(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Status = domain.DriverStatusOffline
	store.DriverRepo.AddDriver(driver)

	svc := newTrackingService(t, store, nil, nil)

	_, err := svc.Report(context.Background(), sampleAt("driver-1", 6.52, 3.37, time.Now()))
	if !errors.Is(err, service.ErrDriverUnavailable) {
		t.Errorf("expected ErrDriverUnavailable, got %v", err)
	}
}

func TestTracking_RejectsInvalidSamples(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.DriverRepo.AddDriver(onlineDriver("driver-1"))
	svc := newTrackingService(t, store, nil, nil)

	_, err := svc.Report(context.Background(), sampleAt("", 6.52, 3.37, time.Now()))
	if !errors.Is(err, service.ErrInvalidDriverID) {
		t.Errorf("expected ErrInvalidDriverID, got %v", err)
	}

	_, err = svc.Report(context.Background(), sampleAt("driver-1", 120, 3.37, time.Now()))
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for bad latitude, got %v", err)
	}
}

// ──────────────────────────────────────────────
// PUBLISHING
// ──────────────────────────────────────────────

func TestTracking_PublishesPositionsForActiveDelivery(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Status = domain.DriverStatusBusy
	driver.CurrentDeliveryID = "delivery-1"
	store.DriverRepo.AddDriver(driver)

	publisher := NewMockPublisher()
	svc := newTrackingService(t, store, nil, publisher)

	now := time.Now()
	if _, err := svc.Report(context.Background(), sampleAt("driver-1", 6.52, 3.37, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A stale duplicate must not publish a second position.
	if _, err := svc.Report(context.Background(), sampleAt("driver-1", 6.51, 3.36, now.Add(-time.Minute))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positions := publisher.EventsNamed("position")
	if len(positions) != 1 {
		t.Fatalf("expected exactly 1 position event, got %d", len(positions))
	}
	sample, ok := positions[0].Payload.(domain.PositionSample)
	if !ok {
		t.Fatalf("unexpected payload type %T", positions[0].Payload)
	}
	if sample.DeliveryID != "delivery-1" {
		t.Errorf("expected delivery id on published sample, got %q", sample.DeliveryID)
	}
}

func TestTracking_DoesNotPublishWithoutDelivery(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.DriverRepo.AddDriver(onlineDriver("driver-1"))
	publisher := NewMockPublisher()
	svc := newTrackingService(t, store, nil, publisher)

	if _, err := svc.Report(context.Background(), sampleAt("driver-1", 6.52, 3.37, time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(publisher.EventsNamed("position")); got != 0 {
		t.Errorf("expected no position events for idle driver, got %d", got)
	}
}

// ──────────────────────────────────────────────
// READS
// ──────────────────────────────────────────────

func TestTracking_DriverPositionFallsBackToHistory(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	recorded := time.Now().Add(-time.Hour)
	_ = store.PositionRepo.AppendBatch(context.Background(), []*domain.PositionSample{
		{DriverID: "driver-1", Lat: 6.50, Lng: 3.30, RecordedAt: recorded.Add(-time.Minute)},
		{DriverID: "driver-1", Lat: 6.52, Lng: 3.37, RecordedAt: recorded},
	})

	// Empty cache forces the durable fallback.
	svc := newTrackingService(t, store, nil, nil)

	got, err := svc.DriverPosition(context.Background(), "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Lat != 6.52 {
		t.Errorf("expected newest durable sample, got lat=%f", got.Lat)
	}
}

func TestTracking_DeliveryTrackReturnsLiveAndHistory(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	driver := onlineDriver("driver-1")
	driver.Status = domain.DriverStatusBusy
	driver.CurrentDeliveryID = "delivery-1"
	store.DriverRepo.AddDriver(driver)

	svc := newTrackingService(t, store, nil, nil)
	svc.Start()

	now := time.Now()
	for i := 0; i < 3; i++ {
		_, err := svc.Report(context.Background(), sampleAt("driver-1", 6.52+float64(i)*0.01, 3.37, now.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatalf("report %d failed: %v", i, err)
		}
	}
	svc.Stop()

	live, history, err := svc.DeliveryTrack(context.Background(), "delivery-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live == nil {
		t.Fatal("expected a live position")
	}
	if want := 6.52 + 2*0.01; live.Lat != want {
		t.Errorf("expected latest sample live, got lat=%f", live.Lat)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 history samples, got %d", len(history))
	}
}

func TestTracking_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.DriverRepo.AddDriver(onlineDriver("driver-1"))

	cfg := trackingConfig()
	cfg.WriteBuffer = 1

	locations := cache.NewMemoryStore(0)
	t.Cleanup(locations.Close)
	svc := service.NewTrackingService(store, locations, NewMockPublisher(), cfg, zerolog.Nop())
	// Writer deliberately not started; the channel fills after one sample.

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := svc.Report(context.Background(), sampleAt("driver-1", 6.52, 3.37, now.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatalf("report %d failed: %v", i, err)
		}
	}

	svc.Start()
	svc.Stop()
	if got := store.PositionRepo.CountSamples(); got != 1 {
		t.Errorf("expected overflow samples dropped, got %d durable", got)
	}
}

// ──────────────────────────────────────────────
// DEGRADED DEPENDENCIES
// ──────────────────────────────────────────────

func TestTracking_ReportSignalsStoreOutage(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.DriverRepo.GetError = errors.New("connection refused")

	svc := newTrackingService(t, store, nil, nil)

	_, err := svc.Report(context.Background(), sampleAt("driver-1", 6.5244, 3.3792, time.Now()))
	var dep *domain.DependencyUnavailableError
	if !errors.As(err, &dep) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if dep.Dependency != "store" {
		t.Errorf("expected store flagged, got %q", dep.Dependency)
	}
}

func TestTracking_DeliveryTrackSignalsStoreOutage(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.PositionRepo.ListByDeliveryError = errors.New("connection refused")

	svc := newTrackingService(t, store, nil, nil)

	_, _, err := svc.DeliveryTrack(context.Background(), "delivery-1")
	var dep *domain.DependencyUnavailableError
	if !errors.As(err, &dep) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
