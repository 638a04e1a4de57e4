package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
	"github.com/Eursukkul/showpass/internal/validator"
)

func (s *bookingService) ConfirmPayment(ctx context.Context, caller Identity, bookingID, paymentConfirmationID string) (*Result, error) {
	paymentConfirmationID = strings.TrimSpace(paymentConfirmationID)
	if paymentConfirmationID == "" {
		return nil, validator.ValidationErrors{{Field: "payment_confirmation_id", Message: "is required"}}
	}

	booking, err := s.owned(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case models.StatusAwaitingPayment:
		return s.confirmPayment(ctx, booking, paymentConfirmationID)
	case models.StatusPaid, models.StatusIssuing, models.StatusConfirmed:
		if booking.PaymentReference != nil && *booking.PaymentReference == paymentConfirmationID {
			res, err := s.result(ctx, booking)
			if err != nil {
				return nil, err
			}
			res.Replayed = true
			return res, nil
		}
	}
	return nil, ErrNotAwaitingPayment
}

// confirmPayment asks the payment authority to confirm the charge for a
// booking in awaiting_payment. On success the reservation is committed
// and the booking moves on to issuance; otherwise the seats go back.
func (s *bookingService) confirmPayment(ctx context.Context, booking *models.Booking, paymentID string) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"reservation_id": booking.ReservationID,
		"payment_id":     paymentID,
	})

	if booking.PaymentDeadline != nil && !s.deps.Clock.Now().Before(*booking.PaymentDeadline) {
		s.release(ctx, booking.ReservationID)
		s.fail(ctx, booking, ErrReservationExpired.Error(), repository.BookingChanges{PaymentStatus: models.PaymentFailed})
		return nil, ErrReservationExpired
	}

	owner, err := s.deps.Bookings.FindByPaymentReference(ctx, paymentID)
	switch {
	case err == nil && owner.ID != booking.ID:
		return nil, ErrPaymentReferenceUsed
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup payment reference: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	ok, err := s.deps.Payments.Confirm(callCtx, paymentID, booking.Pricing.Total)
	timedOut := err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	switch {
	case timedOut:
		log.Warn("Payment authority timed out")
		s.paymentFailed(ctx, booking, "payment confirmation timed out")
		return nil, ErrPaymentTimeout
	case err != nil:
		log.WithError(err).Warn("Payment authority error")
		s.paymentFailed(ctx, booking, "payment authority error")
		return nil, ErrPaymentFailed
	case !ok:
		log.Info("Payment declined")
		s.paymentFailed(ctx, booking, "payment declined")
		return nil, ErrPaymentFailed
	}

	if err := s.deps.Ledger.Commit(ctx, booking.ReservationID); err != nil {
		// the payer was charged but the hold is gone
		log.WithError(err).Error("Payment confirmed after reservation was released, needs reconciliation")
		s.fail(ctx, booking, ErrReservationExpired.Error(), repository.BookingChanges{PaymentStatus: models.PaymentPaid})
		return nil, ErrReservationExpired
	}

	ref := paymentID
	err = s.transition(ctx, booking, models.StatusPaid, repository.BookingChanges{
		PaymentStatus:    models.PaymentPaid,
		PaymentReference: &ref,
	})
	if err != nil {
		if current := s.settleCommitted(ctx, booking.ID, booking.ReservationID); current != nil {
			if current.PaymentReference != nil && *current.PaymentReference == paymentID {
				return s.replayed(ctx, current)
			}
			return nil, ErrNotAwaitingPayment
		}
		if errors.Is(err, repository.ErrPaymentReferenceUsed) {
			s.fail(ctx, booking, err.Error(), repository.BookingChanges{})
		}
		return nil, err
	}
	log.Info("Payment confirmed")

	if err := s.transition(ctx, booking, models.StatusIssuing, repository.BookingChanges{}); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			return s.reload(ctx, booking.ID)
		}
		return nil, err
	}
	return s.issue(ctx, booking)
}

// paymentFailed releases the hold and records the failure through the
// payment_failed step.
func (s *bookingService) paymentFailed(ctx context.Context, booking *models.Booking, reason string) {
	s.release(ctx, booking.ReservationID)
	err := s.transition(context.WithoutCancel(ctx), booking, models.StatusPaymentFailed, repository.BookingChanges{
		PaymentStatus: models.PaymentFailed,
		FailureReason: reason,
	})
	if err != nil {
		logrus.WithError(err).WithField("booking_id", booking.ID).Error("Failed to record payment failure")
		return
	}
	s.fail(ctx, booking, reason, repository.BookingChanges{})
}
