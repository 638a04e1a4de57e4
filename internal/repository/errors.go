package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound                = errors.New("record not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrPaymentReferenceUsed    = errors.New("payment reference already used by another booking")
	ErrStaleTransition         = errors.New("booking status changed concurrently")
	ErrCapacityBelowSold       = errors.New("capacity cannot be lower than tickets already sold")
)

const (
	idempotencyIndex      = "idx_booking_idempotency"
	paymentReferenceIndex = "idx_booking_payment_reference"
)

func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}
