package service

import (
	"errors"

	"github.com/Eursukkul/showpass/internal/repository"
)

var (
	ErrUnauthenticated     = errors.New("caller identity is required")
	ErrEventNotFound       = errors.New("event not found")
	ErrTicketTypeNotFound  = errors.New("ticket type not found for this event")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrForbidden           = errors.New("booking belongs to another user")
	ErrBookingClosed       = errors.New("event has already ended")
	ErrIdempotencyConflict = errors.New("idempotency key was already used with different booking details")
	ErrNotAwaitingPayment  = errors.New("booking is not awaiting payment")
	ErrNotCancellable      = errors.New("only confirmed bookings can be cancelled")
	ErrPaymentFailed       = errors.New("payment could not be confirmed")
	ErrPaymentTimeout      = errors.New("payment confirmation timed out")
	ErrReservationExpired  = errors.New("reservation expired before payment was confirmed")
	ErrConcurrentUpdate    = errors.New("booking was modified concurrently, retry the request")

	ErrPaymentReferenceUsed = repository.ErrPaymentReferenceUsed
)
