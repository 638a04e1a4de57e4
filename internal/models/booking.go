package models

import (
	"time"

	"github.com/Eursukkul/showpass/internal/pricing"
)

type BookingStatus string

const (
	StatusDraft           BookingStatus = "draft"
	StatusValidating      BookingStatus = "validating"
	StatusReserving       BookingStatus = "reserving"
	StatusAwaitingPayment BookingStatus = "awaiting_payment"
	StatusPaid            BookingStatus = "paid"
	StatusPaymentFailed   BookingStatus = "payment_failed"
	StatusIssuing         BookingStatus = "issuing"
	StatusConfirmed       BookingStatus = "confirmed"
	StatusFailed          BookingStatus = "failed"
	StatusCancelled       BookingStatus = "cancelled"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusDraft:           {StatusValidating, StatusFailed},
	StatusValidating:      {StatusReserving, StatusFailed},
	StatusReserving:       {StatusAwaitingPayment, StatusIssuing, StatusFailed},
	StatusAwaitingPayment: {StatusPaid, StatusPaymentFailed, StatusFailed},
	StatusPaid:            {StatusIssuing},
	StatusPaymentFailed:   {StatusFailed},
	StatusIssuing:         {StatusConfirmed, StatusFailed},
	StatusConfirmed:       {StatusCancelled},
	StatusFailed:          {StatusDraft},
}

// CanTransition reports whether the booking lifecycle allows from -> to.
// Failed -> Draft is the resubmission path for a failed attempt.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further forward progress is expected.
func (s BookingStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentFailed      PaymentStatus = "failed"
)

type CredentialMode string

const (
	CredentialPerAttendee CredentialMode = "per_attendee"
	// CredentialPerBooking is the legacy single credential shared by all
	// attendees of a booking.
	CredentialPerBooking CredentialMode = "booking"
)

// Pricing is the snapshot computed once when the booking is created.
type Pricing struct {
	UnitPrice   int64  `gorm:"not null" json:"unit_price"`
	Subtotal    int64  `gorm:"not null" json:"subtotal"`
	PlatformFee int64  `gorm:"not null" json:"platform_fee"`
	VAT         int64  `gorm:"not null" json:"vat"`
	Total       int64  `gorm:"not null" json:"total"`
	Currency    string `gorm:"type:varchar(3)" json:"currency"`
}

func PricingFrom(b pricing.Breakdown) Pricing {
	return Pricing{
		UnitPrice:   b.UnitPrice,
		Subtotal:    b.Subtotal,
		PlatformFee: b.PlatformFee,
		VAT:         b.VAT,
		Total:       b.Total,
		Currency:    b.Currency,
	}
}

type Attendee struct {
	ID        string `gorm:"type:varchar(64);primaryKey" json:"id"`
	BookingID string `gorm:"type:varchar(64);not null;index" json:"booking_id"`
	Position  int    `gorm:"not null" json:"position"`
	Name      string `gorm:"not null" json:"name"`
	Email     string `gorm:"not null" json:"email"`
	Phone     string `gorm:"not null" json:"phone"`
}

type Booking struct {
	ID               string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID           string         `gorm:"not null;uniqueIndex:idx_booking_idempotency" json:"user_id"`
	EventID          string         `gorm:"type:varchar(64);not null;index" json:"event_id"`
	TicketTypeID     string         `gorm:"type:varchar(64);not null" json:"ticket_type_id"`
	Quantity         int            `gorm:"not null" json:"quantity"`
	Attendees        []Attendee     `gorm:"foreignKey:BookingID" json:"attendees"`
	Pricing          Pricing        `gorm:"embedded;embeddedPrefix:price_" json:"pricing"`
	Status           BookingStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus    PaymentStatus  `gorm:"type:varchar(20);not null" json:"payment_status"`
	IdempotencyKey   string         `gorm:"not null;uniqueIndex:idx_booking_idempotency" json:"idempotency_key"`
	PaymentReference *string        `gorm:"uniqueIndex:idx_booking_payment_reference" json:"payment_reference,omitempty"`
	ReservationID    string         `gorm:"type:varchar(64)" json:"reservation_id,omitempty"`
	CredentialMode   CredentialMode `gorm:"type:varchar(20);not null;default:'per_attendee'" json:"credential_mode"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	PaymentDeadline  *time.Time     `json:"payment_deadline,omitempty"`
	ConfirmedAt      *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SameRequest reports whether b was created from an equivalent request,
// which is what makes an idempotent replay safe to answer with b.
func (b *Booking) SameRequest(eventID, ticketTypeID string, quantity int, attendees []Attendee) bool {
	if b.EventID != eventID || b.TicketTypeID != ticketTypeID || b.Quantity != quantity {
		return false
	}
	if len(b.Attendees) != len(attendees) {
		return false
	}
	for i := range attendees {
		a, o := b.Attendees[i], attendees[i]
		if a.Name != o.Name || a.Email != o.Email || a.Phone != o.Phone {
			return false
		}
	}
	return true
}

// Free reports whether the booking skips the payment step.
func (b *Booking) Free() bool {
	return b.Pricing.UnitPrice == 0
}
