package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/seatledger/internal/cache"
	"github.com/Domenick1991/seatledger/internal/clock"
	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/ledger"
	"github.com/Domenick1991/seatledger/internal/replicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetSeatInfo(ctx context.Context, serviceID uint64) (*domain.SeatInfo, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SeatInfo), args.Error(1)
}

func (m *MockCache) SetSeatInfo(ctx context.Context, info domain.SeatInfo, ttl time.Duration) error {
	args := m.Called(ctx, info, ttl)
	return args.Error(0)
}

func (m *MockCache) DeleteSeatInfo(ctx context.Context, serviceID uint64) error {
	args := m.Called(ctx, serviceID)
	return args.Error(0)
}

func (m *MockCache) GetListing(ctx context.Context) ([]domain.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

func (m *MockCache) SetListing(ctx context.Context, services []domain.Service, ttl time.Duration) error {
	args := m.Called(ctx, services, ttl)
	return args.Error(0)
}

func (m *MockCache) DeleteListing(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) GetService(ctx context.Context, serviceID uint64) (*domain.Service, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Service), args.Error(1)
}

func (m *MockAuthority) Services(ctx context.Context) ([]domain.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

// fakeMirror is a map-backed Mirror. onLookup runs before each lookup.
type fakeMirror struct {
	mu       sync.Mutex
	entries  map[uint64]replicator.Entry
	onLookup func()
}

func newFakeMirror(entries ...replicator.Entry) *fakeMirror {
	m := &fakeMirror{entries: make(map[uint64]replicator.Entry)}
	for _, e := range entries {
		m.entries[e.Service.ID] = e
	}
	return m
}

func (m *fakeMirror) Lookup(serviceID uint64) (replicator.Entry, bool) {
	if m.onLookup != nil {
		m.onLookup()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[serviceID]
	return e, ok
}

func (m *fakeMirror) Entries() []replicator.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]replicator.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

func service(id uint64, booked ...int) domain.Service {
	svc := domain.Service{ID: id, Name: "svc", TotalSeats: 10, IsActive: true, StartTime: t0.Add(time.Hour)}
	for _, s := range booked {
		svc.Bitmap.Set(s)
	}
	return svc
}

func newService(c Cache, m Mirror, a Authority, fake *clock.Fake) *CatalogService {
	return NewCatalogService(c, m, a, WithClock(fake), WithLogger(discard))
}

func TestCatalogService_GetSeatInfo_CacheHit(t *testing.T) {
	mockCache := &MockCache{}
	fake := clock.NewFake(t0)
	mirror := newFakeMirror()
	s := newService(mockCache, mirror, nil, fake)

	cached := domain.NewSeatInfo(service(1, 3), t0, 30*time.Second)
	mockCache.On("GetSeatInfo", mock.Anything, uint64(1)).Return(&cached, nil).Once()

	info, err := s.GetSeatInfo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, cached, *info)
	mockCache.AssertNotCalled(t, "SetSeatInfo", mock.Anything, mock.Anything, mock.Anything)
}

func TestCatalogService_GetSeatInfo_MissRecomputesFromMirror(t *testing.T) {
	mockCache := &MockCache{}
	fake := clock.NewFake(t0)
	s := newService(mockCache, newFakeMirror(replicator.Entry{Service: service(1, 3, 4)}), nil, fake)

	want := domain.NewSeatInfo(service(1, 3, 4), t0, 30*time.Second)
	mockCache.On("GetSeatInfo", mock.Anything, uint64(1)).Return(nil, nil).Once()
	mockCache.On("SetSeatInfo", mock.Anything, want, 30*time.Second).Return(nil).Once()

	info, err := s.GetSeatInfo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, info.BookedSeats)
	assert.Equal(t, 8, info.AvailableCount)
	assert.Equal(t, 20.0, info.OccupancyRate)
	assert.Equal(t, t0.Add(30*time.Second), info.ExpiresAt)
	mockCache.AssertExpectations(t)
}

func TestCatalogService_GetSeatInfo_ExpiredOrBrokenCacheIsMiss(t *testing.T) {
	mockCache := &MockCache{}
	fake := clock.NewFake(t0)
	s := newService(mockCache, newFakeMirror(replicator.Entry{Service: service(1)}), nil, fake)

	expired := domain.NewSeatInfo(service(1, 1, 2, 3), t0.Add(-time.Minute), 30*time.Second)
	mockCache.On("GetSeatInfo", mock.Anything, uint64(1)).Return(&expired, nil).Once()
	mockCache.On("GetSeatInfo", mock.Anything, uint64(1)).Return(nil, errors.New("i/o timeout")).Once()
	mockCache.On("SetSeatInfo", mock.Anything, mock.Anything, 30*time.Second).Return(nil).Twice()

	for i := 0; i < 2; i++ {
		info, err := s.GetSeatInfo(context.Background(), 1)
		require.NoError(t, err)
		assert.Empty(t, info.BookedSeats)
	}
	mockCache.AssertExpectations(t)
}

func TestCatalogService_GetSeatInfo_FallsBackToLedger(t *testing.T) {
	mockCache := &MockCache{}
	mockAuthority := &MockAuthority{}
	fake := clock.NewFake(t0)
	s := newService(mockCache, newFakeMirror(), mockAuthority, fake)

	svc := service(2, 10)
	mockCache.On("GetSeatInfo", mock.Anything, uint64(2)).Return(nil, nil)
	mockCache.On("SetSeatInfo", mock.Anything, mock.Anything, 30*time.Second).Return(nil)
	mockAuthority.On("GetService", mock.Anything, uint64(2)).Return(&svc, nil).Once()
	mockAuthority.On("GetService", mock.Anything, uint64(3)).Return(nil, domain.ErrServiceNotFound).Once()

	info, err := s.GetSeatInfo(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, info.BookedSeats)
	assert.False(t, info.Stale)

	_, err = s.GetSeatInfo(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
	mockAuthority.AssertExpectations(t)
}

func TestCatalogService_GetSeatInfo_StaleFallback(t *testing.T) {
	mockCache := &MockCache{}
	mockAuthority := &MockAuthority{}
	fake := clock.NewFake(t0)
	s := newService(mockCache, newFakeMirror(), mockAuthority, fake)
	ctx := context.Background()

	svc := service(4, 1)
	mockCache.On("GetSeatInfo", mock.Anything, uint64(4)).Return(nil, nil)
	mockCache.On("GetSeatInfo", mock.Anything, uint64(5)).Return(nil, nil)
	mockCache.On("SetSeatInfo", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockAuthority.On("GetService", mock.Anything, uint64(4)).Return(&svc, nil).Once()
	mockAuthority.On("GetService", mock.Anything, uint64(4)).Return(nil, context.DeadlineExceeded).Once()
	mockAuthority.On("GetService", mock.Anything, uint64(5)).Return(nil, context.DeadlineExceeded).Once()

	first, err := s.GetSeatInfo(ctx, 4)
	require.NoError(t, err)
	assert.False(t, first.Stale)

	second, err := s.GetSeatInfo(ctx, 4)
	require.NoError(t, err)
	assert.True(t, second.Stale)
	assert.Equal(t, first.BookedSeats, second.BookedSeats)

	_, err = s.GetSeatInfo(ctx, 5)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCatalogService_GetSeatInfo_StaleMirrorNotCached(t *testing.T) {
	mockCache := &MockCache{}
	mockAuthority := &MockAuthority{}
	fake := clock.NewFake(t0)
	mirror := newFakeMirror(replicator.Entry{Service: service(6, 2), Stale: true})
	s := newService(mockCache, mirror, mockAuthority, fake)

	mockCache.On("GetSeatInfo", mock.Anything, uint64(6)).Return(nil, nil)
	mockAuthority.On("GetService", mock.Anything, uint64(6)).Return(nil, errors.New("unreachable"))

	info, err := s.GetSeatInfo(context.Background(), 6)
	require.NoError(t, err)
	assert.True(t, info.Stale)
	assert.Equal(t, []int{2}, info.BookedSeats)
	mockCache.AssertNotCalled(t, "SetSeatInfo", mock.Anything, mock.Anything, mock.Anything)
}

func TestCatalogService_InvalidationDuringRecomputeSkipsStore(t *testing.T) {
	mockCache := &MockCache{}
	fake := clock.NewFake(t0)
	mirror := newFakeMirror(replicator.Entry{Service: service(1)})
	s := newService(mockCache, mirror, nil, fake)
	ctx := context.Background()

	mockCache.On("GetSeatInfo", mock.Anything, uint64(1)).Return(nil, nil)
	mockCache.On("DeleteSeatInfo", mock.Anything, uint64(1)).Return(nil).Once()
	mockCache.On("DeleteListing", mock.Anything).Return(nil).Once()

	// the event lands after the reader looked at the generation
	mirror.onLookup = func() {
		mirror.onLookup = nil
		s.Invalidate(ctx, 1)
	}

	info, err := s.GetSeatInfo(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, info)
	mockCache.AssertNotCalled(t, "SetSeatInfo", mock.Anything, mock.Anything, mock.Anything)
	mockCache.AssertExpectations(t)
}

func TestCatalogService_ListServicesFilters(t *testing.T) {
	mockCache := &MockCache{}
	fake := clock.NewFake(t0)
	train := domain.ServiceTypeTrain
	services := []domain.Service{
		{ID: 1, Type: domain.ServiceTypeBus, Origin: "Lagos", Destination: "Abuja", StartTime: t0.Add(3 * time.Hour), TotalSeats: 40, IsActive: true},
		{ID: 2, Type: domain.ServiceTypeTrain, Origin: "New Lagos", Destination: "Ibadan", StartTime: t0.Add(2 * time.Hour), TotalSeats: 100, IsActive: true},
		{ID: 3, Type: domain.ServiceTypeTrain, Origin: "Lagos", Destination: "Kano", StartTime: t0.Add(time.Hour), TotalSeats: 100, IsActive: false},
		{ID: 4, Type: domain.ServiceTypeTrain, Origin: "Accra", Destination: "Kumasi", StartTime: t0.Add(5 * time.Hour), TotalSeats: 50, IsActive: true},
	}
	entries := make([]replicator.Entry, 0, len(services))
	for _, svc := range services {
		entries = append(entries, replicator.Entry{Service: svc})
	}
	s := newService(mockCache, newFakeMirror(entries...), nil, fake)

	mockCache.On("GetListing", mock.Anything).Return(nil, nil).Once()
	mockCache.On("SetListing", mock.Anything, services, 5*time.Minute).Return(nil).Once()
	mockCache.On("GetListing", mock.Anything).Return(services, nil)

	all, err := s.ListServices(context.Background(), domain.ServiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 4}, ids(all))

	got, err := s.ListServices(context.Background(), domain.ServiceFilter{Type: &train, Origin: "lagos"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids(got))

	got, err = s.ListServices(context.Background(), domain.ServiceFilter{StartAfter: t0.Add(150 * time.Minute), StartBefore: t0.Add(4 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids(got))
	mockCache.AssertExpectations(t)
}

func TestCatalogService_PlatformStats(t *testing.T) {
	fake := clock.NewFake(t0)
	a := service(1, 1, 2)
	b := service(2, 5)
	b.Type = domain.ServiceTypeMovie
	b.IsActive = false
	s := newService(cache.NewMemoryCache(fake), newFakeMirror(replicator.Entry{Service: a}, replicator.Entry{Service: b}), nil, fake)

	stats, err := s.PlatformStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalServices)
	assert.Equal(t, 1, stats.ActiveServices)
	assert.Equal(t, map[domain.ServiceType]int{domain.ServiceTypeBus: 1, domain.ServiceTypeMovie: 1}, stats.ServiceTypes)
	assert.Equal(t, 20, stats.TotalSeats)
	assert.Equal(t, 3, stats.BookedSeats)
	assert.Equal(t, 15.0, stats.OccupancyRate)
}

// A purchase processed by the replicator is visible on the very next read,
// even though the previous view is still within its TTL.
func TestCatalogService_PurchaseVisibleAfterOneCycle(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(t0)
	journal := ledger.NewMemoryJournal()
	engine := ledger.NewEngine(ledger.WithJournal(journal), ledger.WithClock(fake), ledger.WithLogger(discard))

	id, err := engine.ListService(ctx, "provider", ledger.ListServiceInput{
		Type: domain.ServiceTypeBus, Name: "Bus", StartTime: t0.Add(time.Hour), PricePerSeat: 100, TotalSeats: 40,
	})
	require.NoError(t, err)

	r := replicator.New(engine, journal, ledger.NewBroadcaster(1), replicator.WithClock(fake), replicator.WithLogger(discard))
	s := NewCatalogService(cache.NewMemoryCache(fake), r, engine, WithClock(fake), WithLogger(discard))
	r.SetInvalidator(s)
	require.NoError(t, r.Backfill(ctx))

	before, err := s.GetSeatInfo(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, before.AvailableSeats, 7)

	_, err = engine.PurchaseSeats(ctx, "alice", id, []int{7}, 100)
	require.NoError(t, err)
	require.NoError(t, r.Backfill(ctx))

	after, err := s.GetSeatInfo(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, after.AvailableSeats, 7)
	assert.Contains(t, after.BookedSeats, 7)
}

func ids(services []domain.Service) []uint64 {
	out := make([]uint64, 0, len(services))
	for _, s := range services {
		out = append(out, s.ID)
	}
	return out
}
