package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Account identifies a provider or a buyer.
type Account string

type ServiceType uint8

const (
	ServiceTypeBus ServiceType = iota
	ServiceTypeTrain
	ServiceTypeMovie
	ServiceTypeEvent
)

var serviceTypeNames = [...]string{"Bus", "Train", "Movie", "Event"}

func (t ServiceType) Valid() bool { return int(t) < len(serviceTypeNames) }

func (t ServiceType) String() string {
	if !t.Valid() {
		return "ServiceType(" + strconv.Itoa(int(t)) + ")"
	}
	return serviceTypeNames[t]
}

func (t ServiceType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown service type %d", t)
	}
	return []byte(t.String()), nil
}

func (t *ServiceType) UnmarshalText(text []byte) error {
	parsed, err := ParseServiceType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseServiceType accepts either the type name (case-insensitive) or its
// numeric index.
func ParseServiceType(s string) (ServiceType, error) {
	for i, name := range serviceTypeNames {
		if strings.EqualFold(s, name) {
			return ServiceType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(serviceTypeNames) {
		return ServiceType(n), nil
	}
	return 0, fmt.Errorf("unknown service type %q", s)
}

type Service struct {
	ID               uint64      `json:"id"`
	Type             ServiceType `json:"serviceType"`
	Provider         Account     `json:"provider"`
	Name             string      `json:"name"`
	Origin           string      `json:"origin"`
	Destination      string      `json:"destination"`
	StartTime        time.Time   `json:"startTime"`
	BasePricePerSeat uint64      `json:"basePricePerSeat"`
	TotalSeats       int         `json:"totalSeats"`
	Bitmap           Bitmap      `json:"occupancyBitmap"`
	IsActive         bool        `json:"isActive"`
	ListedAt         time.Time   `json:"listedAt"`
}

func (s Service) BookedCount() int { return s.Bitmap.Count() }

func (s Service) AvailableCount() int { return s.TotalSeats - s.Bitmap.Count() }

// OccupancyRate is the booked share of seats as a percentage.
func (s Service) OccupancyRate() float64 {
	if s.TotalSeats == 0 {
		return 0
	}
	return float64(s.Bitmap.Count()) * 100 / float64(s.TotalSeats)
}

// ServiceFilter narrows listing queries. Zero fields match everything.
type ServiceFilter struct {
	Type        *ServiceType
	Origin      string
	Destination string
	StartAfter  time.Time
	StartBefore time.Time
}

// Match reports whether s passes the filter. Inactive services never match.
func (f ServiceFilter) Match(s Service) bool {
	if !s.IsActive {
		return false
	}
	if f.Type != nil && s.Type != *f.Type {
		return false
	}
	if f.Origin != "" && !containsFold(s.Origin, f.Origin) {
		return false
	}
	if f.Destination != "" && !containsFold(s.Destination, f.Destination) {
		return false
	}
	if !f.StartAfter.IsZero() && s.StartTime.Before(f.StartAfter) {
		return false
	}
	if !f.StartBefore.IsZero() && s.StartTime.After(f.StartBefore) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SeatInfo is the cached, derived seat view of one service.
type SeatInfo struct {
	ServiceID      uint64    `json:"serviceId"`
	TotalSeats     int       `json:"totalSeats"`
	BookedSeats    []int     `json:"bookedSeats"`
	AvailableSeats []int     `json:"availableSeats"`
	BookedCount    int       `json:"bookedCount"`
	AvailableCount int       `json:"availableCount"`
	OccupancyRate  float64   `json:"occupancyRate"`
	LastUpdated    time.Time `json:"lastUpdated"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Stale          bool      `json:"stale"`
}

// NewSeatInfo derives the seat partition of s as observed at now.
func NewSeatInfo(s Service, now time.Time, ttl time.Duration) SeatInfo {
	booked := s.Bitmap.Booked(s.TotalSeats)
	available := s.Bitmap.Available(s.TotalSeats)
	return SeatInfo{
		ServiceID:      s.ID,
		TotalSeats:     s.TotalSeats,
		BookedSeats:    booked,
		AvailableSeats: available,
		BookedCount:    len(booked),
		AvailableCount: len(available),
		OccupancyRate:  s.OccupancyRate(),
		LastUpdated:    now,
		ExpiresAt:      now.Add(ttl),
	}
}

type PlatformStats struct {
	TotalServices  int                 `json:"totalServices"`
	ActiveServices int                 `json:"activeServices"`
	ServiceTypes   map[ServiceType]int `json:"serviceTypes"`
	TotalSeats     int                 `json:"totalSeats"`
	BookedSeats    int                 `json:"bookedSeats"`
	OccupancyRate  float64             `json:"occupancyRate"`
}
