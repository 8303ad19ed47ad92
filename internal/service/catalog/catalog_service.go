// Package catalog serves the read side: seat views, filtered listings and
// platform statistics, cached with bounded staleness.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Domenick1991/seatledger/internal/clock"
	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/Domenick1991/seatledger/internal/replicator"
)

// ErrUnavailable means neither the mirror nor the ledger could answer and
// no earlier answer exists to fall back on.
var ErrUnavailable = errors.New("seat state unavailable")

type UseCase interface {
	ListServices(ctx context.Context, filter domain.ServiceFilter) ([]domain.Service, error)
	GetService(ctx context.Context, serviceID uint64) (*ServiceView, error)
	GetSeatInfo(ctx context.Context, serviceID uint64) (*domain.SeatInfo, error)
	PlatformStats(ctx context.Context) (*domain.PlatformStats, error)
}

type Cache interface {
	GetSeatInfo(ctx context.Context, serviceID uint64) (*domain.SeatInfo, error)
	SetSeatInfo(ctx context.Context, info domain.SeatInfo, ttl time.Duration) error
	DeleteSeatInfo(ctx context.Context, serviceID uint64) error
	GetListing(ctx context.Context) ([]domain.Service, error)
	SetListing(ctx context.Context, services []domain.Service, ttl time.Duration) error
	DeleteListing(ctx context.Context) error
}

type Mirror interface {
	Lookup(serviceID uint64) (replicator.Entry, bool)
	Entries() []replicator.Entry
}

// Authority is the ledger itself, read when the mirror cannot answer.
type Authority interface {
	GetService(ctx context.Context, serviceID uint64) (*domain.Service, error)
	Services(ctx context.Context) ([]domain.Service, error)
}

type ServiceView struct {
	domain.Service
	BookedCount    int     `json:"bookedCount"`
	AvailableCount int     `json:"availableCount"`
	OccupancyRate  float64 `json:"occupancyRate"`
	Stale          bool    `json:"stale"`
}

type CatalogService struct {
	cache     Cache
	mirror    Mirror
	authority Authority
	clock     clock.Clock
	logger    *slog.Logger

	seatTTL     time.Duration
	listingTTL  time.Duration
	readTimeout time.Duration

	// mu orders cache writes against invalidations: a recompute stores
	// only if no invalidation happened since it started reading.
	mu         sync.Mutex
	gens       map[uint64]uint64
	listingGen uint64
	lastGood   map[uint64]domain.SeatInfo
}

type Option func(*CatalogService)

func WithTTL(seat, listing time.Duration) Option {
	return func(s *CatalogService) {
		s.seatTTL = seat
		s.listingTTL = listing
	}
}

func WithReadTimeout(d time.Duration) Option { return func(s *CatalogService) { s.readTimeout = d } }

func WithClock(c clock.Clock) Option { return func(s *CatalogService) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *CatalogService) { s.logger = l } }

func NewCatalogService(cache Cache, mirror Mirror, authority Authority, opts ...Option) *CatalogService {
	s := &CatalogService{
		cache:       cache,
		mirror:      mirror,
		authority:   authority,
		seatTTL:     30 * time.Second,
		listingTTL:  5 * time.Minute,
		readTimeout: 2 * time.Second,
		gens:        make(map[uint64]uint64),
		lastGood:    make(map[uint64]domain.SeatInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetSeatInfo serves the cached view while it is fresh. On a miss it
// recomputes from the mirror, or from the ledger when the mirror has no
// fresh entry. When neither answers, the last computed view is returned
// marked stale.
func (s *CatalogService) GetSeatInfo(ctx context.Context, serviceID uint64) (*domain.SeatInfo, error) {
	gen := s.generation(serviceID)

	if info := s.cachedSeatInfo(ctx, serviceID); info != nil {
		return info, nil
	}

	svc, stale, err := s.resolve(ctx, serviceID)
	if err != nil {
		if errors.Is(err, domain.ErrServiceNotFound) {
			return nil, err
		}
		s.mu.Lock()
		last, ok := s.lastGood[serviceID]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		last.Stale = true
		return &last, nil
	}

	info := domain.NewSeatInfo(*svc, s.clock.Now(), s.seatTTL)
	info.Stale = stale
	if !stale {
		s.storeSeatInfo(ctx, gen, info)
	}
	return &info, nil
}

// Invalidate drops the seat view of a service and the cached listing.
func (s *CatalogService) Invalidate(ctx context.Context, serviceID uint64) {
	s.mu.Lock()
	s.gens[serviceID]++
	s.listingGen++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	if err := s.cache.DeleteSeatInfo(ctx, serviceID); err != nil {
		s.logger.Warn("invalidate seat info", "service_id", serviceID, "error", err)
	}
	if err := s.cache.DeleteListing(ctx); err != nil {
		s.logger.Warn("invalidate listing", "error", err)
	}
}

func (s *CatalogService) GetService(ctx context.Context, serviceID uint64) (*ServiceView, error) {
	svc, stale, err := s.resolve(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return &ServiceView{
		Service:        *svc,
		BookedCount:    svc.BookedCount(),
		AvailableCount: svc.AvailableCount(),
		OccupancyRate:  svc.OccupancyRate(),
		Stale:          stale,
	}, nil
}

// ListServices returns active services matching filter, by start time.
func (s *CatalogService) ListServices(ctx context.Context, filter domain.ServiceFilter) ([]domain.Service, error) {
	all, err := s.allServices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Service, 0, len(all))
	for _, svc := range all {
		if filter.Match(svc) {
			out = append(out, svc)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Service) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (s *CatalogService) PlatformStats(ctx context.Context) (*domain.PlatformStats, error) {
	all, err := s.allServices(ctx)
	if err != nil {
		return nil, err
	}
	stats := &domain.PlatformStats{TotalServices: len(all), ServiceTypes: make(map[domain.ServiceType]int)}
	for _, svc := range all {
		if svc.IsActive {
			stats.ActiveServices++
		}
		stats.ServiceTypes[svc.Type]++
		stats.TotalSeats += svc.TotalSeats
		stats.BookedSeats += svc.BookedCount()
	}
	if stats.TotalSeats > 0 {
		stats.OccupancyRate = float64(stats.BookedSeats) * 100 / float64(stats.TotalSeats)
	}
	return stats, nil
}

func (s *CatalogService) cachedSeatInfo(ctx context.Context, serviceID uint64) *domain.SeatInfo {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	info, err := s.cache.GetSeatInfo(ctx, serviceID)
	if err != nil {
		s.logger.Warn("seat cache read", "service_id", serviceID, "error", err)
		return nil
	}
	if info == nil || !s.clock.Now().Before(info.ExpiresAt) {
		return nil
	}
	return info
}

func (s *CatalogService) storeSeatInfo(ctx context.Context, gen uint64, info domain.SeatInfo) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[info.ServiceID] != gen {
		return
	}
	s.lastGood[info.ServiceID] = info
	if err := s.cache.SetSeatInfo(ctx, info, s.seatTTL); err != nil {
		s.logger.Warn("seat cache write", "service_id", info.ServiceID, "error", err)
	}
}

// resolve prefers a fresh mirror entry, then the ledger, then a stale
// mirror entry.
func (s *CatalogService) resolve(ctx context.Context, serviceID uint64) (*domain.Service, bool, error) {
	entry, mirrored := s.mirror.Lookup(serviceID)
	if mirrored && !entry.Stale {
		return &entry.Service, false, nil
	}
	if s.authority != nil {
		actx, cancel := context.WithTimeout(ctx, s.readTimeout)
		svc, err := s.authority.GetService(actx, serviceID)
		cancel()
		if err == nil {
			return svc, false, nil
		}
		if !mirrored {
			return nil, false, err
		}
		s.logger.Warn("ledger read failed, serving stale mirror", "service_id", serviceID, "error", err)
	}
	if mirrored {
		return &entry.Service, true, nil
	}
	return nil, false, domain.ErrServiceNotFound
}

func (s *CatalogService) allServices(ctx context.Context) ([]domain.Service, error) {
	s.mu.Lock()
	gen := s.listingGen
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	cached, err := s.cache.GetListing(rctx)
	cancel()
	if err != nil {
		s.logger.Warn("listing cache read", "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	entries := s.mirror.Entries()
	all := make([]domain.Service, 0, len(entries))
	for _, e := range entries {
		all = append(all, e.Service)
	}
	if len(all) == 0 && s.authority != nil {
		actx, cancel := context.WithTimeout(ctx, s.readTimeout)
		all, err = s.authority.Services(actx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	slices.SortFunc(all, func(a, b domain.Service) int { return cmp.Compare(a.ID, b.ID) })

	wctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listingGen == gen {
		if err := s.cache.SetListing(wctx, all, s.listingTTL); err != nil {
			s.logger.Warn("listing cache write", "error", err)
		}
	}
	return all, nil
}

func (s *CatalogService) generation(serviceID uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[serviceID]
}

var (
	_ UseCase                 = (*CatalogService)(nil)
	_ replicator.Invalidator = (*CatalogService)(nil)
)
