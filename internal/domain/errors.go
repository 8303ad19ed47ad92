package domain

import (
	"errors"
	"fmt"
)

// Validation failures.
var (
	ErrNameRequired        = errors.New("name required")
	ErrPriceRequired       = errors.New("price required")
	ErrSeatsOutOfRange     = errors.New("seats must be 1-256")
	ErrStartMustBeFuture   = errors.New("start must be future")
	ErrSeatsArrayEmpty     = errors.New("seats array empty")
	ErrInvalidSeatNumber   = errors.New("invalid seat number")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrUnknownServiceType  = errors.New("unknown service type")
	ErrAmountOverflow      = errors.New("amount overflow")
)

// Conflicts.
var (
	ErrSeatAlreadyBooked = errors.New("seat already booked")
	ErrServiceInactive   = errors.New("service inactive")
	ErrAlreadyRefunded   = errors.New("already refunded")
	ErrTooLateForRefund  = errors.New("too late for refund")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
	ErrRefundWindowOpen  = errors.New("refund window still open")
)

// Authorization.
var (
	ErrNotTicketOwner = errors.New("not ticket owner")
	ErrNotProvider    = errors.New("not provider")
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrTicketNotFound  = errors.New("ticket not found")
)

// SeatError names the seat that violated a precondition.
type SeatError struct {
	Err  error
	Seat int
}

func (e *SeatError) Error() string { return fmt.Sprintf("%s: %d", e.Err, e.Seat) }

func (e *SeatError) Unwrap() error { return e.Err }

func InvalidSeatNumber(seat int) error {
	return &SeatError{Err: ErrInvalidSeatNumber, Seat: seat}
}

func SeatAlreadyBooked(seat int) error {
	return &SeatError{Err: ErrSeatAlreadyBooked, Seat: seat}
}

func IsValidation(err error) bool {
	return anyIs(err, ErrNameRequired, ErrPriceRequired, ErrSeatsOutOfRange, ErrStartMustBeFuture,
		ErrSeatsArrayEmpty, ErrInvalidSeatNumber, ErrInsufficientPayment, ErrUnknownServiceType, ErrAmountOverflow)
}

func IsConflict(err error) bool {
	return anyIs(err, ErrSeatAlreadyBooked, ErrServiceInactive, ErrAlreadyRefunded, ErrTooLateForRefund, ErrNothingToWithdraw,
		ErrRefundWindowOpen)
}

func IsUnauthorized(err error) bool {
	return anyIs(err, ErrNotTicketOwner, ErrNotProvider)
}

func IsNotFound(err error) bool {
	return anyIs(err, ErrServiceNotFound, ErrTicketNotFound)
}

func anyIs(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
