package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"courier/internal/domain"
	"courier/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK DELIVERY REPOSITORY
// ──────────────────────────────────────────────

// MockDeliveryRepository is a mock implementation of DeliveryRepository.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.Delivery

	// Counters for verification
	CreateCallCount         int32
	UpdateIfStatusCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockDeliveryRepository creates a new mock delivery repository.
func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{
		deliveries: make(map[string]*domain.Delivery),
	}
}

// AddDelivery adds a delivery to the mock repository.
func (m *MockDeliveryRepository) AddDelivery(delivery *domain.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[delivery.ID] = delivery
}

// GetDelivery returns the stored delivery for test assertions.
func (m *MockDeliveryRepository) GetDelivery(id string) *domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries[id]
}

func (m *MockDeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *delivery
	m.deliveries[delivery.ID] = &copy
	return nil
}

func (m *MockDeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	delivery, ok := m.deliveries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *delivery
	return &copy, nil
}

func (m *MockDeliveryRepository) Update(ctx context.Context, delivery *domain.Delivery) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deliveries[delivery.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *delivery
	m.deliveries[delivery.ID] = &copy
	return nil
}

func (m *MockDeliveryRepository) UpdateIfStatus(ctx context.Context, delivery *domain.Delivery, expected domain.DeliveryStatus) error {
	atomic.AddInt32(&m.UpdateIfStatusCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.deliveries[delivery.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}
	copy := *delivery
	m.deliveries[delivery.ID] = &copy
	return nil
}

func (m *MockDeliveryRepository) ListStatusOlderThan(ctx context.Context, status domain.DeliveryStatus, cutoff time.Time) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Delivery
	for _, d := range m.deliveries {
		if d.Status != status {
			continue
		}
		var since time.Time
		switch status {
		case domain.DeliveryStatusPending:
			since = d.CreatedAt
		case domain.DeliveryStatusAccepted:
			since = d.AcceptedAt
		case domain.DeliveryStatusDelivered:
			since = d.DeliveredAt
		default:
			since = d.CreatedAt
		}
		if since.Before(cutoff) {
			copy := *d
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockDeliveryRepository) snapshot() map[string]*domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Delivery, len(m.deliveries))
	for id, d := range m.deliveries {
		copy := *d
		out[id] = &copy
	}
	return out
}

func (m *MockDeliveryRepository) restore(state map[string]*domain.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = state
}

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is a mock implementation of DriverRepository.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	// Counters for verification
	UpdateStatusCallCount   int32
	UpdatePositionCallCount int32
	ClaimCallCount          int32

	// Error injection
	GetError            error
	UpdateError         error
	ClaimError          error
	ListAvailableError  error
	UpdatePositionError error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.Driver),
	}
}

// AddDriver adds a driver to the mock repository.
func (m *MockDriverRepository) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
}

// GetDriver returns the stored driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drivers[id]
}

func (m *MockDriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *driver
	m.drivers[driver.ID] = &copy
	return nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *driver
	return &copy, nil
}

func (m *MockDriverRepository) GetByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drivers {
		if d.Phone == phone {
			copy := *d
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockDriverRepository) Update(ctx context.Context, driver *domain.Driver) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[driver.ID]; !ok {
		return repository.ErrNotFound
	}
	copy := *driver
	m.drivers[driver.ID] = &copy
	return nil
}

func (m *MockDriverRepository) UpdateStatus(ctx context.Context, id string, status domain.DriverStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.Status = status
	return nil
}

func (m *MockDriverRepository) UpdatePosition(ctx context.Context, id string, lat, lng float64, seenAt time.Time) error {
	atomic.AddInt32(&m.UpdatePositionCallCount, 1)
	if m.UpdatePositionError != nil {
		return m.UpdatePositionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.LastLat = lat
	driver.LastLng = lng
	driver.LastSeenAt = seenAt
	return nil
}

// ClaimDelivery performs the eligibility check and the assignment under one
// lock, mirroring the conditional UPDATE the real repository issues.
func (m *MockDriverRepository) ClaimDelivery(ctx context.Context, driverID, deliveryID string) error {
	atomic.AddInt32(&m.ClaimCallCount, 1)
	if m.ClaimError != nil {
		return m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	if driver.Status != domain.DriverStatusOnline || !driver.IsAvailable || !driver.Verified || driver.CurrentDeliveryID != "" {
		return repository.ErrStatusConflict
	}
	driver.Status = domain.DriverStatusBusy
	driver.IsAvailable = false
	driver.CurrentDeliveryID = deliveryID
	return nil
}

// ReleaseDelivery frees the driver only while deliveryID still holds them.
func (m *MockDriverRepository) ReleaseDelivery(ctx context.Context, driverID, deliveryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[driverID]
	if !ok || driver.CurrentDeliveryID != deliveryID {
		return nil
	}
	driver.Status = domain.DriverStatusOnline
	driver.IsAvailable = true
	driver.CurrentDeliveryID = ""
	return nil
}

func (m *MockDriverRepository) ListAvailable(ctx context.Context) ([]*domain.Driver, error) {
	if m.ListAvailableError != nil {
		return nil, m.ListAvailableError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Driver
	for _, d := range m.drivers {
		if d.Status == domain.DriverStatusOnline && d.IsAvailable && d.Verified && d.CurrentDeliveryID == "" {
			copy := *d
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockDriverRepository) snapshot() map[string]*domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Driver, len(m.drivers))
	for id, d := range m.drivers {
		copy := *d
		out[id] = &copy
	}
	return out
}

func (m *MockDriverRepository) restore(state map[string]*domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers = state
}

// ──────────────────────────────────────────────
// MOCK POSITION REPOSITORY
// ──────────────────────────────────────────────

// MockPositionRepository is a mock implementation of PositionRepository.
type MockPositionRepository struct {
	mu      sync.RWMutex
	samples []*domain.PositionSample

	AppendBatchCallCount int32
	AppendBatchError     error
	ListByDeliveryError  error
}

// NewMockPositionRepository creates a new mock position repository.
func NewMockPositionRepository() *MockPositionRepository {
	return &MockPositionRepository{}
}

// CountSamples returns the number of stored samples.
func (m *MockPositionRepository) CountSamples() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

func (m *MockPositionRepository) AppendBatch(ctx context.Context, samples []*domain.PositionSample) error {
	atomic.AddInt32(&m.AppendBatchCallCount, 1)
	if m.AppendBatchError != nil {
		return m.AppendBatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		copy := *s
		m.samples = append(m.samples, &copy)
	}
	return nil
}

func (m *MockPositionRepository) LatestByDriver(ctx context.Context, driverID string) (*domain.PositionSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.PositionSample
	for _, s := range m.samples {
		if s.DriverID != driverID {
			continue
		}
		if latest == nil || s.RecordedAt.After(latest.RecordedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	copy := *latest
	return &copy, nil
}

func (m *MockPositionRepository) ListByDelivery(ctx context.Context, deliveryID string, limit int) ([]*domain.PositionSample, error) {
	if m.ListByDeliveryError != nil {
		return nil, m.ListByDeliveryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.PositionSample
	for i := len(m.samples) - 1; i >= 0 && len(result) < limit; i-- {
		if m.samples[i].DeliveryID == deliveryID {
			copy := *m.samples[i]
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockPositionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.PositionSample
	var deleted int64
	for _, s := range m.samples {
		if s.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return deleted, nil
}

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// MockStore bundles the mock repositories behind repository.Store. WithinTx
// serializes callers with a mutex, which is enough to make conditional
// updates plus driver coupling atomic in tests.
type MockStore struct {
	txMu sync.Mutex

	DeliveryRepo *MockDeliveryRepository
	DriverRepo   *MockDriverRepository
	PositionRepo *MockPositionRepository

	// Error injection
	TxError error
}

// NewMockStore creates a store over fresh mock repositories.
func NewMockStore() *MockStore {
	return &MockStore{
		DeliveryRepo: NewMockDeliveryRepository(),
		DriverRepo:   NewMockDriverRepository(),
		PositionRepo: NewMockPositionRepository(),
	}
}

func (m *MockStore) Deliveries() repository.DeliveryRepository { return m.DeliveryRepo }
func (m *MockStore) Drivers() repository.DriverRepository      { return m.DriverRepo }
func (m *MockStore) Positions() repository.PositionRepository  { return m.PositionRepo }

func (m *MockStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	if m.TxError != nil {
		return m.TxError
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	deliveries := m.DeliveryRepo.snapshot()
	drivers := m.DriverRepo.snapshot()

	if err := fn(m); err != nil {
		// Roll back, mirroring a real transaction.
		m.DeliveryRepo.restore(deliveries)
		m.DriverRepo.restore(drivers)
		return err
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// PublishedEvent records one Publish call.
type PublishedEvent struct {
	Topic   string
	Event   string
	Payload any
}

// MockPublisher records published events for assertions.
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent

	PublishError error
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic, event string, payload any) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Topic: topic, Event: event, Payload: payload})
	return nil
}

// Events returns a snapshot of everything published so far.
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsNamed returns published events with the given event name.
func (m *MockPublisher) EventsNamed(name string) []PublishedEvent {
	var out []PublishedEvent
	for _, e := range m.Events() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}
