package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/clock"
	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/ledger"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/payment"
	"github.com/Eursukkul/showpass/internal/pricing"
	"github.com/Eursukkul/showpass/internal/repository"
	"github.com/Eursukkul/showpass/internal/validator"
)

const (
	DefaultPaymentTimeout = 45 * time.Second
	workerBatch           = 100
)

// Identity is the authenticated caller. It is resolved upstream and
// passed to every operation explicitly.
type Identity struct {
	UserID string
}

type AttendeeInput struct {
	Name  string
	Email string
	Phone string
}

type SubmitRequest struct {
	EventID               string
	TicketTypeID          string
	Quantity              int
	Attendees             []AttendeeInput
	IdempotencyKey        string
	PaymentConfirmationID string
	// CredentialMode defaults to one credential per attendee.
	CredentialMode models.CredentialMode
}

type Result struct {
	Booking     *models.Booking
	Credentials []models.Credential
	// Replayed is set when the request matched an earlier submission.
	Replayed bool
}

type BookingService interface {
	Submit(ctx context.Context, caller Identity, req SubmitRequest) (*Result, error)
	ConfirmPayment(ctx context.Context, caller Identity, bookingID, paymentConfirmationID string) (*Result, error)
	Get(ctx context.Context, caller Identity, bookingID string) (*models.Booking, error)
	ListForUser(ctx context.Context, caller Identity) ([]models.Booking, error)
	Credentials(ctx context.Context, caller Identity, bookingID string) ([]models.Credential, error)
	Cancel(ctx context.Context, caller Identity, bookingID string) (*models.Booking, error)
	RetryIssuance(ctx context.Context) (int, error)
	ExpireAwaitingPayment(ctx context.Context) (int, error)
}

type Issuer interface {
	Issue(ctx context.Context, booking *models.Booking) ([]models.Credential, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Deps are the collaborators of the booking service. Publisher may be nil.
type Deps struct {
	Bookings    repository.BookingRepository
	Events      repository.EventRepository
	Credentials repository.CredentialRepository
	Ledger      *ledger.Ledger
	Pricing     *pricing.Calculator
	Validator   *validator.Validator
	Payments    payment.Authority
	Issuer      Issuer
	Publisher   Publisher
	Clock       clock.Clock
}

type Option func(*bookingService)

// WithPaymentTimeout bounds each round trip to the payment authority.
func WithPaymentTimeout(d time.Duration) Option {
	return func(s *bookingService) {
		if d > 0 {
			s.paymentTimeout = d
		}
	}
}

type bookingService struct {
	deps           Deps
	paymentTimeout time.Duration
}

func NewBookingService(deps Deps, opts ...Option) BookingService {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	s := &bookingService{deps: deps, paymentTimeout: DefaultPaymentTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *bookingService) Submit(ctx context.Context, caller Identity, req SubmitRequest) (*Result, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	req = normalize(req)

	var errs validator.ValidationErrors
	if req.IdempotencyKey == "" {
		errs = append(errs, validator.FieldError{Field: "idempotency_key", Message: "is required"})
	}
	if req.CredentialMode != models.CredentialPerAttendee && req.CredentialMode != models.CredentialPerBooking {
		errs = append(errs, validator.FieldError{Field: "credential_mode", Message: "must be per_attendee or booking"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	existing, err := s.deps.Bookings.FindByIdempotencyKey(ctx, caller.UserID, req.IdempotencyKey)
	switch {
	case err == nil:
		return s.replay(ctx, existing, req)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	tt, err := s.admissible(ctx, req)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.deps.Pricing.Price(tt.UnitPrice, req.Quantity)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	booking := &models.Booking{
		ID:             uuid.NewString(),
		UserID:         caller.UserID,
		EventID:        req.EventID,
		TicketTypeID:   req.TicketTypeID,
		Quantity:       req.Quantity,
		Attendees:      attendeesOf(req),
		Pricing:        models.PricingFrom(breakdown),
		Status:         models.StatusDraft,
		PaymentStatus:  paymentStatusFor(breakdown.Free()),
		IdempotencyKey: req.IdempotencyKey,
		CredentialMode: req.CredentialMode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range booking.Attendees {
		booking.Attendees[i].ID = uuid.NewString()
		booking.Attendees[i].BookingID = booking.ID
	}

	if err := s.deps.Bookings.Create(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// a concurrent submission with the same key won the insert
			winner, findErr := s.deps.Bookings.FindByIdempotencyKey(ctx, caller.UserID, req.IdempotencyKey)
			if findErr != nil {
				return nil, fmt.Errorf("lookup idempotency key: %w", findErr)
			}
			return s.replay(ctx, winner, req)
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"user_id":        booking.UserID,
		"ticket_type_id": booking.TicketTypeID,
		"quantity":       booking.Quantity,
		"total":          booking.Pricing.Total,
	}).Info("Booking created")

	return s.drive(ctx, booking, req.PaymentConfirmationID)
}

// admissible loads the ticket type and runs validation against its live
// remaining count.
func (s *bookingService) admissible(ctx context.Context, req SubmitRequest) (*models.TicketType, error) {
	event, err := s.deps.Events.FindByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event.Ended(s.deps.Clock.Now()) {
		return nil, ErrBookingClosed
	}

	var tt *models.TicketType
	for i := range event.TicketTypes {
		if event.TicketTypes[i].ID == req.TicketTypeID {
			tt = &event.TicketTypes[i]
			break
		}
	}
	if tt == nil {
		return nil, ErrTicketTypeNotFound
	}

	vreq := validator.Request{Quantity: req.Quantity}
	for _, a := range req.Attendees {
		vreq.Attendees = append(vreq.Attendees, validator.Attendee(a))
	}
	if err := s.deps.Validator.Validate(vreq, tt.Remaining()); err != nil {
		return nil, err
	}
	return tt, nil
}

// replay answers a submission whose idempotency key was seen before.
func (s *bookingService) replay(ctx context.Context, existing *models.Booking, req SubmitRequest) (*Result, error) {
	if !existing.SameRequest(req.EventID, req.TicketTypeID, req.Quantity, attendeesOf(req)) {
		return nil, ErrIdempotencyConflict
	}

	switch existing.Status {
	case models.StatusFailed:
		return s.reopen(ctx, existing, req)
	case models.StatusDraft:
		// an earlier submission stopped before validation started
		return s.drive(ctx, existing, req.PaymentConfirmationID)
	case models.StatusAwaitingPayment:
		if req.PaymentConfirmationID != "" {
			return s.confirmPayment(ctx, existing, req.PaymentConfirmationID)
		}
	}
	return s.replayed(ctx, existing)
}

// reopen moves a failed booking back to draft and drives it again with
// the same id and pricing snapshot.
func (s *bookingService) reopen(ctx context.Context, booking *models.Booking, req SubmitRequest) (*Result, error) {
	if _, err := s.admissible(ctx, req); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, booking, models.StatusDraft, repository.BookingChanges{ClearAttempt: true}); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			current, findErr := s.deps.Bookings.FindByID(ctx, booking.ID)
			if findErr != nil {
				return nil, fmt.Errorf("reload booking: %w", findErr)
			}
			return s.result(ctx, current)
		}
		return nil, err
	}
	booking.PaymentStatus = paymentStatusFor(booking.Free())
	booking.PaymentReference = nil
	booking.ReservationID = ""
	booking.FailureReason = ""
	booking.PaymentDeadline = nil

	logrus.WithField("booking_id", booking.ID).Info("Reopened failed booking")
	return s.drive(ctx, booking, req.PaymentConfirmationID)
}

// drive runs a draft booking through reservation and, for free tickets,
// issuance. Paid bookings stop in awaiting_payment unless a payment
// confirmation id came with the request.
func (s *bookingService) drive(ctx context.Context, booking *models.Booking, paymentID string) (*Result, error) {
	if err := s.transition(ctx, booking, models.StatusValidating, repository.BookingChanges{}); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			// another submission with the same key is driving it
			return s.reload(ctx, booking.ID)
		}
		s.abandon(ctx, booking, err)
		return nil, err
	}
	if err := s.transition(ctx, booking, models.StatusReserving, repository.BookingChanges{}); err != nil {
		s.abandon(ctx, booking, err)
		return nil, err
	}

	res, err := s.deps.Ledger.TryReserve(ctx, booking.TicketTypeID, booking.Quantity)
	if err != nil {
		s.fail(ctx, booking, err.Error(), repository.BookingChanges{})
		if errors.Is(err, ledger.ErrInsufficientInventory) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve inventory: %w", err)
	}

	if booking.Free() {
		if err := s.deps.Ledger.Commit(ctx, res.ID); err != nil {
			s.release(ctx, res.ID)
			s.fail(ctx, booking, err.Error(), repository.BookingChanges{})
			return nil, err
		}
		err := s.transition(ctx, booking, models.StatusIssuing, repository.BookingChanges{
			ReservationID: res.ID,
			PaymentStatus: models.PaymentNotRequired,
		})
		if err != nil {
			if current := s.settleCommitted(ctx, booking.ID, res.ID); current != nil {
				return s.replayed(ctx, current)
			}
			s.abandon(ctx, booking, err)
			return nil, err
		}
		return s.issue(ctx, booking)
	}

	deadline := res.ExpiresAt
	err = s.transition(ctx, booking, models.StatusAwaitingPayment, repository.BookingChanges{
		ReservationID:   res.ID,
		PaymentStatus:   models.PaymentPending,
		PaymentDeadline: &deadline,
	})
	if err != nil {
		s.release(ctx, res.ID)
		s.abandon(ctx, booking, err)
		return nil, err
	}

	if paymentID == "" {
		return &Result{Booking: booking}, nil
	}
	return s.confirmPayment(ctx, booking, paymentID)
}

// issue mints credentials for a booking in issuing. A failure leaves the
// booking in issuing for RetryIssuance; the payer is not told it failed.
func (s *bookingService) issue(ctx context.Context, booking *models.Booking) (*Result, error) {
	creds, err := s.deps.Issuer.Issue(ctx, booking)
	if err != nil {
		logrus.WithError(err).WithField("booking_id", booking.ID).Error("Credential issuance failed, will retry")
		return &Result{Booking: booking}, nil
	}

	confirmedAt := s.deps.Clock.Now()
	if err := s.transition(ctx, booking, models.StatusConfirmed, repository.BookingChanges{ConfirmedAt: &confirmedAt}); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			// a retry finished it first
			current, findErr := s.deps.Bookings.FindByID(ctx, booking.ID)
			if findErr != nil {
				return nil, fmt.Errorf("reload booking: %w", findErr)
			}
			return s.result(ctx, current)
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"credentials": len(creds),
	}).Info("Booking confirmed")
	s.publish(ctx, dto.RoutingBookingConfirmed, booking)
	return &Result{Booking: booking, Credentials: creds}, nil
}

func (s *bookingService) Get(ctx context.Context, caller Identity, bookingID string) (*models.Booking, error) {
	return s.owned(ctx, caller, bookingID)
}

func (s *bookingService) ListForUser(ctx context.Context, caller Identity) ([]models.Booking, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.deps.Bookings.ListByUser(ctx, caller.UserID)
}

func (s *bookingService) Credentials(ctx context.Context, caller Identity, bookingID string) ([]models.Credential, error) {
	booking, err := s.owned(ctx, caller, bookingID)
	if err != nil {
		return nil, err
	}
	return s.deps.Credentials.FindByBooking(ctx, booking.ID)
}

func (s *bookingService) owned(ctx context.Context, caller Identity, bookingID string) (*models.Booking, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	booking, err := s.deps.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if booking.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	return booking, nil
}

// reload answers with the stored state of a booking another request
// moved on.
func (s *bookingService) reload(ctx context.Context, bookingID string) (*Result, error) {
	current, err := s.deps.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("reload booking: %w", err)
	}
	return s.replayed(ctx, current)
}

func (s *bookingService) replayed(ctx context.Context, booking *models.Booking) (*Result, error) {
	res, err := s.result(ctx, booking)
	if err != nil {
		return nil, err
	}
	res.Replayed = true
	return res, nil
}

func (s *bookingService) result(ctx context.Context, booking *models.Booking) (*Result, error) {
	res := &Result{Booking: booking}
	if booking.Status == models.StatusConfirmed {
		creds, err := s.deps.Credentials.FindByBooking(ctx, booking.ID)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		res.Credentials = creds
	}
	return res, nil
}

// transition persists a lifecycle step with compare-and-set on the
// current status and mirrors it onto booking.
func (s *bookingService) transition(ctx context.Context, booking *models.Booking, to models.BookingStatus, changes repository.BookingChanges) error {
	from := booking.Status
	if !models.CanTransition(from, to) {
		return fmt.Errorf("booking %s: illegal transition %s -> %s", booking.ID, from, to)
	}

	if err := s.deps.Bookings.Transition(ctx, booking.ID, from, to, changes); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return ErrConcurrentUpdate
		}
		return err
	}

	booking.Status = to
	if changes.PaymentStatus != "" {
		booking.PaymentStatus = changes.PaymentStatus
	}
	if changes.PaymentReference != nil {
		ref := *changes.PaymentReference
		booking.PaymentReference = &ref
	}
	if changes.ReservationID != "" {
		booking.ReservationID = changes.ReservationID
	}
	if changes.FailureReason != "" {
		booking.FailureReason = changes.FailureReason
	}
	if changes.PaymentDeadline != nil {
		booking.PaymentDeadline = changes.PaymentDeadline
	}
	if changes.ConfirmedAt != nil {
		booking.ConfirmedAt = changes.ConfirmedAt
	}
	if changes.CancelledAt != nil {
		booking.CancelledAt = changes.CancelledAt
	}
	booking.UpdatedAt = s.deps.Clock.Now()

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"from":       from,
		"to":         to,
	}).Debug("Booking transition")
	return nil
}

// fail moves the booking to failed, recording why. Errors are logged
// only: the caller is already on an error path.
func (s *bookingService) fail(ctx context.Context, booking *models.Booking, reason string, changes repository.BookingChanges) {
	ctx = context.WithoutCancel(ctx)
	changes.FailureReason = reason
	if err := s.transition(ctx, booking, models.StatusFailed, changes); err != nil {
		logrus.WithError(err).WithField("booking_id", booking.ID).Error("Failed to mark booking failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reason":     reason,
	}).Warn("Booking failed")
}

// abandon records a step that could not be persisted as a failure, so a
// resubmission with the same key reopens the booking. A lost
// compare-and-set is left alone: the winner owns the booking now.
func (s *bookingService) abandon(ctx context.Context, booking *models.Booking, err error) {
	if errors.Is(err, ErrConcurrentUpdate) {
		return
	}
	logrus.WithError(err).WithField("booking_id", booking.ID).Error("Booking step could not be saved")
	s.fail(ctx, booking, "booking could not be processed, resubmit to retry", repository.BookingChanges{})
}

// settleCommitted runs after a transition failed on a booking whose
// reservation is already committed. If the stored booking holds those
// seats (a concurrent request got there first) it is returned and the
// seats stay sold; otherwise they go back to the pool and nil is returned.
// When the booking cannot be reloaded the seats stay committed for
// reconciliation.
func (s *bookingService) settleCommitted(ctx context.Context, bookingID, reservationID string) *models.Booking {
	current, err := s.deps.Bookings.FindByID(context.WithoutCancel(ctx), bookingID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"booking_id":     bookingID,
			"reservation_id": reservationID,
		}).Error("Cannot reload booking, committed reservation needs reconciliation")
		return nil
	}
	if holdsSeats(current, reservationID) {
		return current
	}
	s.restore(ctx, reservationID)
	return nil
}

// holdsSeats reports whether b is past payment on reservationID.
func holdsSeats(b *models.Booking, reservationID string) bool {
	if b.ReservationID != reservationID {
		return false
	}
	switch b.Status {
	case models.StatusPaid, models.StatusIssuing, models.StatusConfirmed:
		return true
	}
	return false
}

func (s *bookingService) release(ctx context.Context, reservationID string) {
	if err := s.deps.Ledger.Release(context.WithoutCancel(ctx), reservationID); err != nil && !errors.Is(err, ledger.ErrReservationNotPending) {
		logrus.WithError(err).WithField("reservation_id", reservationID).Error("Failed to release reservation")
	}
}

func (s *bookingService) restore(ctx context.Context, reservationID string) {
	if err := s.deps.Ledger.Restore(context.WithoutCancel(ctx), reservationID); err != nil {
		logrus.WithError(err).WithField("reservation_id", reservationID).Error("Failed to restore reservation")
	}
}

func (s *bookingService) publish(ctx context.Context, routingKey string, b *models.Booking) {
	if s.deps.Publisher == nil {
		return
	}
	msg := dto.BookingMessage{
		BookingID:    b.ID,
		UserID:       b.UserID,
		EventID:      b.EventID,
		TicketTypeID: b.TicketTypeID,
		Quantity:     b.Quantity,
		Total:        b.Pricing.Total,
		Currency:     b.Pricing.Currency,
		Status:       string(b.Status),
		OccurredAt:   s.deps.Clock.Now(),
	}
	if err := s.deps.Publisher.Publish(ctx, routingKey, msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"booking_id":  b.ID,
			"routing_key": routingKey,
		}).Warn("Failed to publish booking notification")
	}
}

func normalize(req SubmitRequest) SubmitRequest {
	req.EventID = strings.TrimSpace(req.EventID)
	req.TicketTypeID = strings.TrimSpace(req.TicketTypeID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.PaymentConfirmationID = strings.TrimSpace(req.PaymentConfirmationID)
	if req.CredentialMode == "" {
		req.CredentialMode = models.CredentialPerAttendee
	}
	attendees := make([]AttendeeInput, len(req.Attendees))
	for i, a := range req.Attendees {
		attendees[i] = AttendeeInput{
			Name:  strings.TrimSpace(a.Name),
			Email: strings.TrimSpace(a.Email),
			Phone: strings.TrimSpace(a.Phone),
		}
	}
	req.Attendees = attendees
	return req
}

func attendeesOf(req SubmitRequest) []models.Attendee {
	out := make([]models.Attendee, len(req.Attendees))
	for i, a := range req.Attendees {
		out[i] = models.Attendee{Position: i, Name: a.Name, Email: a.Email, Phone: a.Phone}
	}
	return out
}

func paymentStatusFor(free bool) models.PaymentStatus {
	if free {
		return models.PaymentNotRequired
	}
	return models.PaymentPending
}
