package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
)

// Cancel cancels a confirmed booking before its event ends, returning
// the seats to the pool and revoking the credentials.
func (s *bookingService) Cancel(ctx context.Context, caller Identity, bookingID string) (*models.Booking, error) {
	booking, err := s.owned(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusConfirmed {
		return nil, ErrNotCancellable
	}

	event, err := s.deps.Events.FindByID(ctx, booking.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	now := s.deps.Clock.Now()
	if event.Ended(now) {
		return nil, ErrBookingClosed
	}

	if err := s.transition(ctx, booking, models.StatusCancelled, repository.BookingChanges{CancelledAt: &now}); err != nil {
		return nil, err
	}

	if err := s.deps.Credentials.RevokeByBooking(ctx, booking.ID); err != nil {
		logrus.WithError(err).WithField("booking_id", booking.ID).Error("Failed to revoke credentials")
	}
	if booking.ReservationID != "" {
		s.restore(ctx, booking.ReservationID)
	}

	logrus.WithField("booking_id", booking.ID).Info("Booking cancelled")
	s.publish(ctx, dto.RoutingBookingCancelled, booking)
	return booking, nil
}

// RetryIssuance finishes bookings whose payment went through but whose
// credentials were never issued. It returns how many got confirmed.
func (s *bookingService) RetryIssuance(ctx context.Context) (int, error) {
	paid, err := s.deps.Bookings.ListByStatus(ctx, models.StatusPaid, workerBatch)
	if err != nil {
		return 0, fmt.Errorf("list paid bookings: %w", err)
	}
	for i := range paid {
		err := s.transition(ctx, &paid[i], models.StatusIssuing, repository.BookingChanges{})
		if err != nil && !errors.Is(err, ErrConcurrentUpdate) {
			return 0, err
		}
	}

	issuing, err := s.deps.Bookings.ListByStatus(ctx, models.StatusIssuing, workerBatch)
	if err != nil {
		return 0, fmt.Errorf("list issuing bookings: %w", err)
	}

	confirmed := 0
	for i := range issuing {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		res, err := s.issue(ctx, &issuing[i])
		if err != nil {
			logrus.WithError(err).WithField("booking_id", issuing[i].ID).Warn("Issuance retry failed")
			continue
		}
		if res.Booking.Status == models.StatusConfirmed {
			confirmed++
		}
	}
	return confirmed, nil
}

// ExpireAwaitingPayment fails bookings whose payment window has closed
// and frees their seats.
func (s *bookingService) ExpireAwaitingPayment(ctx context.Context) (int, error) {
	waiting, err := s.deps.Bookings.ListByStatus(ctx, models.StatusAwaitingPayment, workerBatch)
	if err != nil {
		return 0, fmt.Errorf("list awaiting payment: %w", err)
	}

	now := s.deps.Clock.Now()
	expired := 0
	for i := range waiting {
		b := &waiting[i]
		if b.PaymentDeadline == nil || now.Before(*b.PaymentDeadline) {
			continue
		}
		s.release(ctx, b.ReservationID)
		err := s.transition(ctx, b, models.StatusFailed, repository.BookingChanges{
			PaymentStatus: models.PaymentFailed,
			FailureReason: "payment window expired",
		})
		if errors.Is(err, ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		logrus.WithField("booking_id", b.ID).Info("Expired unpaid booking")
	}
	return expired, nil
}
