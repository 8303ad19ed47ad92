// Package occupancy holds the authoritative per-service seat bitmaps.
package occupancy

import (
	"fmt"
	"sync"

	"github.com/Domenick1991/seatledger/internal/domain"
)

type entry struct {
	bitmap     domain.Bitmap
	totalSeats int
	active     bool
}

// Store answers seat queries in O(totalSeats) or better. Every mutation is
// all-or-nothing: it validates all seats before touching a bit.
type Store struct {
	mu      sync.RWMutex
	entries map[uint64]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[uint64]*entry)}
}

// Add registers an active service with an empty bitmap.
func (s *Store) Add(serviceID uint64, totalSeats int) error {
	if totalSeats < 1 || totalSeats > domain.MaxSeats {
		return domain.ErrSeatsOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[serviceID]; ok {
		return fmt.Errorf("service %d already registered", serviceID)
	}
	s.entries[serviceID] = &entry{totalSeats: totalSeats, active: true}
	return nil
}

func (s *Store) IsBooked(serviceID uint64, seat int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return false, domain.ErrServiceNotFound
	}
	if seat < 1 || seat > e.totalSeats {
		return false, domain.InvalidSeatNumber(seat)
	}
	return e.bitmap.Has(seat), nil
}

func (s *Store) AvailableSeats(serviceID uint64) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return e.bitmap.Available(e.totalSeats), nil
}

// Bitmap returns a copy of the service's current bitmap.
func (s *Store) Bitmap(serviceID uint64) (domain.Bitmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return domain.Bitmap{}, domain.ErrServiceNotFound
	}
	return e.bitmap, nil
}

// CheckRange fails with InvalidSeatNumber on the first seat outside
// [1, totalSeats].
func (s *Store) CheckRange(serviceID uint64, seats []int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return domain.ErrServiceNotFound
	}
	return checkRange(e, seats)
}

// CheckFree fails with SeatAlreadyBooked on the first seat that is booked
// or that repeats an earlier seat of the same request.
func (s *Store) CheckFree(serviceID uint64, seats []int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return domain.ErrServiceNotFound
	}
	if err := checkRange(e, seats); err != nil {
		return err
	}
	_, err := withBooked(e, seats)
	return err
}

// MarkBooked sets every seat or none.
func (s *Store) MarkBooked(serviceID uint64, seats []int) error {
	if len(seats) == 0 {
		return domain.ErrSeatsArrayEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return domain.ErrServiceNotFound
	}
	if !e.active {
		return domain.ErrServiceInactive
	}
	if err := checkRange(e, seats); err != nil {
		return err
	}
	next, err := withBooked(e, seats)
	if err != nil {
		return err
	}
	e.bitmap = next
	return nil
}

// MarkAvailable clears every seat or none. Clearing a seat that is not
// booked is a no-op for that seat.
func (s *Store) MarkAvailable(serviceID uint64, seats []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return domain.ErrServiceNotFound
	}
	if err := checkRange(e, seats); err != nil {
		return err
	}
	for _, seat := range seats {
		e.bitmap.Clear(seat)
	}
	return nil
}

func (s *Store) SetActive(serviceID uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[serviceID]
	if !ok {
		return domain.ErrServiceNotFound
	}
	e.active = active
	return nil
}

func checkRange(e *entry, seats []int) error {
	for _, seat := range seats {
		if seat < 1 || seat > e.totalSeats {
			return domain.InvalidSeatNumber(seat)
		}
	}
	return nil
}

// withBooked returns the bitmap with seats set, applying them in request
// order so a duplicate collides with its own first occurrence.
func withBooked(e *entry, seats []int) (domain.Bitmap, error) {
	next := e.bitmap
	for _, seat := range seats {
		if next.Has(seat) {
			return domain.Bitmap{}, domain.SeatAlreadyBooked(seat)
		}
		next.Set(seat)
	}
	return next, nil
}
