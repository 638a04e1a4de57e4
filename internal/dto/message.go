package dto

import "time"

const (
	RoutingBookingConfirmed = "booking.confirmed"
	RoutingBookingCancelled = "booking.cancelled"
	RoutingTicketCheckedIn  = "ticket.checked_in"
)

// BookingMessage is published on booking.confirmed and booking.cancelled.
type BookingMessage struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Total        int64     `json:"total"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type CheckInMessage struct {
	CredentialID string    `json:"credential_id"`
	BookingID    string    `json:"booking_id"`
	AttendeeID   string    `json:"attendee_id,omitempty"`
	EventID      string    `json:"event_id"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

// EventMessage is the catalog payload consumed on event.created and
// event.updated.
type EventMessage struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Venue       string              `json:"venue"`
	StartsAt    time.Time           `json:"starts_at"`
	EndsAt      time.Time           `json:"ends_at"`
	TicketTypes []TicketTypeMessage `json:"ticket_types"`
}

type TicketTypeMessage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Capacity  int    `json:"capacity"`
}
