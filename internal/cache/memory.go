package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Domenick1991/seatledger/internal/clock"
	"github.com/Domenick1991/seatledger/internal/domain"
)

type item[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryCache keeps entries in process and expires them by the clock.
type MemoryCache struct {
	clock clock.Clock

	mu       sync.Mutex
	seatInfo map[uint64]item[domain.SeatInfo]
	listing  *item[[]domain.Service]
}

func NewMemoryCache(c clock.Clock) *MemoryCache {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryCache{clock: c, seatInfo: make(map[uint64]item[domain.SeatInfo])}
}

func (c *MemoryCache) GetSeatInfo(_ context.Context, serviceID uint64) (*domain.SeatInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.seatInfo[serviceID]
	if !ok {
		return nil, nil
	}
	if !c.clock.Now().Before(it.expiresAt) {
		delete(c.seatInfo, serviceID)
		return nil, nil
	}
	info := it.value
	info.BookedSeats = slices.Clone(info.BookedSeats)
	info.AvailableSeats = slices.Clone(info.AvailableSeats)
	return &info, nil
}

func (c *MemoryCache) SetSeatInfo(_ context.Context, info domain.SeatInfo, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seatInfo[info.ServiceID] = item[domain.SeatInfo]{value: info, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) DeleteSeatInfo(_ context.Context, serviceID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seatInfo, serviceID)
	return nil
}

func (c *MemoryCache) GetListing(_ context.Context) ([]domain.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listing == nil {
		return nil, nil
	}
	if !c.clock.Now().Before(c.listing.expiresAt) {
		c.listing = nil
		return nil, nil
	}
	return slices.Clone(c.listing.value), nil
}

func (c *MemoryCache) SetListing(_ context.Context, services []domain.Service, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listing = &item[[]domain.Service]{value: slices.Clone(services), expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) DeleteListing(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listing = nil
	return nil
}
