// Package ledger owns the sold counter of every ticket type.
//
// A reservation atomically moves quantity from remaining to sold and is
// provisional until committed. Pending reservations that outlive their
// TTL are released by Sweep so abandoned checkouts never leak capacity.
// For every ticket type, at every point in time, sold <= capacity.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/clock"
	"github.com/Eursukkul/showpass/internal/models"
)

const (
	DefaultReservationTTL = 15 * time.Minute
	defaultSweepBatch     = 100
)

var (
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrTicketTypeNotFound    = errors.New("ticket type not found")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrReservationNotPending = errors.New("reservation is not pending")
	ErrReservationNotActive  = errors.New("reservation is not committed")
)

// InsufficientInventoryError carries the remaining count so callers can
// tell the user how many tickets they can still get.
type InsufficientInventoryError struct {
	TicketTypeID string
	Requested    int
	Remaining    int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: requested %d, only %d remaining", e.Requested, e.Remaining)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// Store is the persistence behind the ledger. Every method must be
// atomic with respect to concurrent callers on the same ticket type.
type Store interface {
	// Reserve increments sold by res.Quantity and records res, but only
	// if that keeps sold <= capacity. Otherwise it returns an
	// *InsufficientInventoryError and changes nothing.
	Reserve(ctx context.Context, res models.Reservation) error
	// Commit moves a pending reservation to committed.
	Commit(ctx context.Context, reservationID string) error
	// Release moves a pending reservation to released and gives its
	// quantity back.
	Release(ctx context.Context, reservationID string) error
	// Restore moves a committed reservation to cancelled and gives its
	// quantity back.
	Restore(ctx context.Context, reservationID string) error
	// ExpiredPending lists pending reservations with ExpiresAt <= now.
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	FindTicketType(ctx context.Context, id string) (*models.TicketType, error)
}

type Ledger struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
}

type Option func(*Ledger)

// WithTTL overrides how long an uncommitted reservation is held.
func WithTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.ttl = d
		}
	}
}

func New(store Store, clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		clock: clk,
		ttl:   DefaultReservationTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// TryReserve holds quantity tickets of a ticket type until the returned
// reservation is committed, released or expires.
func (l *Ledger) TryReserve(ctx context.Context, ticketTypeID string, quantity int) (models.Reservation, error) {
	if quantity < 1 {
		return models.Reservation{}, ErrInvalidQuantity
	}

	now := l.clock.Now()
	res := models.Reservation{
		ID:           uuid.NewString(),
		TicketTypeID: ticketTypeID,
		Quantity:     quantity,
		Status:       models.ReservationPending,
		ExpiresAt:    now.Add(l.ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := l.store.Reserve(ctx, res); err != nil {
		return models.Reservation{}, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"ticket_type_id": ticketTypeID,
		"quantity":       quantity,
	}).Debug("Reserved inventory")
	return res, nil
}

func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	if err := l.store.Commit(ctx, reservationID); err != nil {
		return fmt.Errorf("commit reservation %s: %w", reservationID, err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	if err := l.store.Release(ctx, reservationID); err != nil {
		return fmt.Errorf("release reservation %s: %w", reservationID, err)
	}
	return nil
}

// Restore returns the seats of a committed reservation to the pool. It
// backs booking cancellation.
func (l *Ledger) Restore(ctx context.Context, reservationID string) error {
	if err := l.store.Restore(ctx, reservationID); err != nil {
		return fmt.Errorf("restore reservation %s: %w", reservationID, err)
	}
	return nil
}

// Remaining is a point-in-time read; it may be stale by the time the
// caller acts on it.
func (l *Ledger) Remaining(ctx context.Context, ticketTypeID string) (int, error) {
	tt, err := l.store.FindTicketType(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}
	return tt.Remaining(), nil
}

// Sweep releases every pending reservation whose TTL has elapsed and
// returns how many were released.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	released := 0
	for {
		expired, err := l.store.ExpiredPending(ctx, l.clock.Now(), defaultSweepBatch)
		if err != nil {
			return released, fmt.Errorf("list expired reservations: %w", err)
		}
		if len(expired) == 0 {
			return released, nil
		}

		progressed := false
		for _, res := range expired {
			err := l.store.Release(ctx, res.ID)
			switch {
			case err == nil:
				released++
				progressed = true
				logrus.WithFields(logrus.Fields{
					"reservation_id": res.ID,
					"ticket_type_id": res.TicketTypeID,
					"quantity":       res.Quantity,
				}).Info("Released expired reservation")
			case errors.Is(err, ErrReservationNotPending):
				// committed or released concurrently
				progressed = true
			default:
				return released, fmt.Errorf("release expired reservation %s: %w", res.ID, err)
			}
		}
		if !progressed || len(expired) < defaultSweepBatch {
			return released, nil
		}
	}
}
