package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/showpass/internal/ledger"
	"github.com/Eursukkul/showpass/internal/models"
)

// Inventory is the ledger store over a Catalog. Operations on one
// ticket type serialize on that ticket type's slot; different ticket
// types never contend.
type Inventory struct {
	catalog *Catalog

	mu           sync.RWMutex
	reservations map[string]*models.Reservation
}

var _ ledger.Store = (*Inventory)(nil)

func NewInventory(catalog *Catalog) *Inventory {
	return &Inventory{
		catalog:      catalog,
		reservations: make(map[string]*models.Reservation),
	}
}

func (s *Inventory) Reserve(_ context.Context, res models.Reservation) error {
	slot, ok := s.catalog.slot(res.TicketTypeID)
	if !ok {
		return ledger.ErrTicketTypeNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.tt.Sold+res.Quantity > slot.tt.Capacity {
		return &ledger.InsufficientInventoryError{
			TicketTypeID: res.TicketTypeID,
			Requested:    res.Quantity,
			Remaining:    slot.tt.Remaining(),
		}
	}
	slot.tt.Sold += res.Quantity

	s.mu.Lock()
	s.reservations[res.ID] = &res
	s.mu.Unlock()
	return nil
}

func (s *Inventory) Commit(_ context.Context, reservationID string) error {
	return s.withReservation(reservationID, func(slot *ticketSlot, res *models.Reservation) error {
		switch res.Status {
		case models.ReservationCommitted:
			return nil
		case models.ReservationPending:
			s.setStatus(res, models.ReservationCommitted)
			return nil
		default:
			return ledger.ErrReservationNotPending
		}
	})
}

func (s *Inventory) Release(_ context.Context, reservationID string) error {
	return s.withReservation(reservationID, func(slot *ticketSlot, res *models.Reservation) error {
		switch res.Status {
		case models.ReservationReleased:
			return nil
		case models.ReservationPending:
			slot.tt.Sold -= res.Quantity
			s.setStatus(res, models.ReservationReleased)
			return nil
		default:
			return ledger.ErrReservationNotPending
		}
	})
}

func (s *Inventory) Restore(_ context.Context, reservationID string) error {
	return s.withReservation(reservationID, func(slot *ticketSlot, res *models.Reservation) error {
		switch res.Status {
		case models.ReservationCancelled:
			return nil
		case models.ReservationCommitted:
			slot.tt.Sold -= res.Quantity
			s.setStatus(res, models.ReservationCancelled)
			return nil
		default:
			return ledger.ErrReservationNotActive
		}
	})
}

func (s *Inventory) ExpiredPending(_ context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	s.mu.RLock()
	var out []models.Reservation
	for _, res := range s.reservations {
		if res.Status == models.ReservationPending && !res.ExpiresAt.After(now) {
			out = append(out, *res)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Inventory) FindTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	tt, err := s.catalog.FindTicketType(ctx, id)
	if err != nil {
		return nil, ledger.ErrTicketTypeNotFound
	}
	return tt, nil
}

// withReservation runs fn holding the slot lock of the reservation's
// ticket type.
func (s *Inventory) withReservation(id string, fn func(*ticketSlot, *models.Reservation) error) error {
	s.mu.RLock()
	res, ok := s.reservations[id]
	s.mu.RUnlock()
	if !ok {
		return ledger.ErrReservationNotFound
	}

	slot, ok := s.catalog.slot(res.TicketTypeID)
	if !ok {
		return ledger.ErrTicketTypeNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return fn(slot, res)
}

func (s *Inventory) setStatus(res *models.Reservation, status models.ReservationStatus) {
	s.mu.Lock()
	res.Status = status
	res.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// Reservation returns a copy of a stored reservation.
func (s *Inventory) Reservation(id string) (models.Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.reservations[id]
	if !ok {
		return models.Reservation{}, false
	}
	return *res, true
}
