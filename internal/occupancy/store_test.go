package occupancy

import (
	"errors"
	"testing"

	"github.com/Domenick1991/seatledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, total int) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Add(1, total))
	return s
}

func TestStore_AddRejectsWidth(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Add(1, 0), domain.ErrSeatsOutOfRange)
	assert.ErrorIs(t, s.Add(1, 257), domain.ErrSeatsOutOfRange)
	assert.NoError(t, s.Add(1, 256))
	assert.Error(t, s.Add(1, 10))
}

func TestStore_IsBookedValidatesSeat(t *testing.T) {
	s := newStore(t, 40)

	_, err := s.IsBooked(1, 0)
	var se *domain.SeatError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.Seat)
	assert.ErrorIs(t, err, domain.ErrInvalidSeatNumber)

	_, err = s.IsBooked(1, 41)
	assert.ErrorIs(t, err, domain.ErrInvalidSeatNumber)

	_, err = s.IsBooked(2, 1)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}

func TestStore_MarkBookedIsAllOrNothing(t *testing.T) {
	s := newStore(t, 40)
	require.NoError(t, s.MarkBooked(1, []int{5}))

	err := s.MarkBooked(1, []int{1, 2, 5, 6})
	assert.Equal(t, domain.SeatAlreadyBooked(5), err)

	for _, seat := range []int{1, 2, 6} {
		booked, err := s.IsBooked(1, seat)
		require.NoError(t, err)
		assert.False(t, booked, "seat %d leaked", seat)
	}
	available, err := s.AvailableSeats(1)
	require.NoError(t, err)
	assert.Len(t, available, 39)
}

func TestStore_MarkBookedRangeBeforeConflict(t *testing.T) {
	s := newStore(t, 10)
	require.NoError(t, s.MarkBooked(1, []int{3}))

	err := s.MarkBooked(1, []int{3, 11})
	assert.ErrorIs(t, err, domain.ErrInvalidSeatNumber)
}

func TestStore_DuplicateSeatCollidesWithItself(t *testing.T) {
	s := newStore(t, 10)

	err := s.MarkBooked(1, []int{4, 4})
	assert.Equal(t, domain.SeatAlreadyBooked(4), err)
	booked, _ := s.IsBooked(1, 4)
	assert.False(t, booked)
}

func TestStore_InactiveRejectsBooking(t *testing.T) {
	s := newStore(t, 10)
	require.NoError(t, s.SetActive(1, false))
	assert.ErrorIs(t, s.MarkBooked(1, []int{1}), domain.ErrServiceInactive)

	require.NoError(t, s.SetActive(1, true))
	assert.NoError(t, s.MarkBooked(1, []int{1}))
}

func TestStore_MarkAvailable(t *testing.T) {
	s := newStore(t, 256)
	require.NoError(t, s.MarkBooked(1, []int{1, 128, 256}))

	assert.ErrorIs(t, s.MarkAvailable(1, []int{128, 300}), domain.ErrInvalidSeatNumber)
	booked, _ := s.IsBooked(1, 128)
	assert.True(t, booked)

	require.NoError(t, s.MarkAvailable(1, []int{128, 256}))
	bm, err := s.Bitmap(1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, bm.Booked(256))
}

func TestStore_CheckFree(t *testing.T) {
	s := newStore(t, 10)
	require.NoError(t, s.MarkBooked(1, []int{2}))

	assert.NoError(t, s.CheckFree(1, []int{1, 3}))
	assert.Equal(t, domain.SeatAlreadyBooked(2), s.CheckFree(1, []int{1, 2}))
	assert.ErrorIs(t, s.CheckRange(1, []int{0}), domain.ErrInvalidSeatNumber)
}
