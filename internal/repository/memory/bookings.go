package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
)

type Bookings struct {
	mu          sync.RWMutex
	byID        map[string]*models.Booking
	byKey       map[string]string
	byReference map[string]string
}

var _ repository.BookingRepository = (*Bookings)(nil)

func NewBookings() *Bookings {
	return &Bookings{
		byID:        make(map[string]*models.Booking),
		byKey:       make(map[string]string),
		byReference: make(map[string]string),
	}
}

func idempotencyKey(userID, key string) string {
	return userID + "\x00" + key
}

func (s *Bookings) Create(_ context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := idempotencyKey(booking.UserID, booking.IdempotencyKey)
	if _, ok := s.byKey[key]; ok {
		return repository.ErrDuplicateIdempotencyKey
	}
	if ref := booking.PaymentReference; ref != nil {
		if _, ok := s.byReference[*ref]; ok {
			return repository.ErrPaymentReferenceUsed
		}
		s.byReference[*ref] = booking.ID
	}

	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = booking.CreatedAt
	for i := range booking.Attendees {
		booking.Attendees[i].BookingID = booking.ID
	}

	s.byID[booking.ID] = cloneBooking(booking)
	s.byKey[key] = booking.ID
	return nil
}

func (s *Bookings) FindByID(_ context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (s *Bookings) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error) {
	s.mu.RLock()
	id, ok := s.byKey[idempotencyKey(userID, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *Bookings) FindByPaymentReference(ctx context.Context, reference string) (*models.Booking, error) {
	s.mu.RLock()
	id, ok := s.byReference[reference]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *Bookings) ListByUser(_ context.Context, userID string) ([]models.Booking, error) {
	return s.list(func(b *models.Booking) bool { return b.UserID == userID }, func(a, b *models.Booking) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}, 0), nil
}

func (s *Bookings) ListByStatus(_ context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	return s.list(func(b *models.Booking) bool { return b.Status == status }, func(a, b *models.Booking) bool {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}, limit), nil
}

func (s *Bookings) list(match func(*models.Booking) bool, less func(a, b *models.Booking) bool, limit int) []models.Booking {
	s.mu.RLock()
	var out []models.Booking
	for _, b := range s.byID {
		if match(b) {
			out = append(out, *cloneBooking(b))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Bookings) Transition(_ context.Context, id string, from, to models.BookingStatus, changes repository.BookingChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != from {
		return repository.ErrStaleTransition
	}
	if ref := changes.PaymentReference; ref != nil {
		if owner, ok := s.byReference[*ref]; ok && owner != id {
			return repository.ErrPaymentReferenceUsed
		}
	}

	b.Status = to
	if changes.ClearAttempt {
		if b.PaymentReference != nil {
			delete(s.byReference, *b.PaymentReference)
		}
		b.PaymentStatus = models.PaymentNotRequired
		b.PaymentReference = nil
		b.ReservationID = ""
		b.FailureReason = ""
		b.PaymentDeadline = nil
	}
	if changes.PaymentStatus != "" {
		b.PaymentStatus = changes.PaymentStatus
	}
	if ref := changes.PaymentReference; ref != nil {
		r := *ref
		b.PaymentReference = &r
		s.byReference[r] = id
	}
	if changes.ReservationID != "" {
		b.ReservationID = changes.ReservationID
	}
	if changes.FailureReason != "" {
		b.FailureReason = changes.FailureReason
	}
	if changes.PaymentDeadline != nil {
		b.PaymentDeadline = copyTime(changes.PaymentDeadline)
	}
	if changes.ConfirmedAt != nil {
		b.ConfirmedAt = copyTime(changes.ConfirmedAt)
	}
	if changes.CancelledAt != nil {
		b.CancelledAt = copyTime(changes.CancelledAt)
	}
	b.UpdatedAt = time.Now()
	return nil
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.Attendees = append([]models.Attendee(nil), b.Attendees...)
	if b.PaymentReference != nil {
		ref := *b.PaymentReference
		c.PaymentReference = &ref
	}
	c.PaymentDeadline = copyTime(b.PaymentDeadline)
	c.ConfirmedAt = copyTime(b.ConfirmedAt)
	c.CancelledAt = copyTime(b.CancelledAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
