package dto

import "time"

type AttendeeRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CreateBookingRequest struct {
	EventID               string            `json:"event_id"`
	TicketTypeID          string            `json:"ticket_type_id"`
	Quantity              int               `json:"quantity"`
	Attendees             []AttendeeRequest `json:"attendees"`
	IdempotencyKey        string            `json:"idempotency_key"`
	PaymentConfirmationID string            `json:"payment_confirmation_id,omitempty"`
	CredentialMode        string            `json:"credential_mode,omitempty"`
}

type ConfirmPaymentRequest struct {
	PaymentConfirmationID string `json:"payment_confirmation_id"`
}

type TicketTypeRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Capacity  int    `json:"capacity"`
}

type CreateEventRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Venue       string              `json:"venue"`
	StartsAt    time.Time           `json:"starts_at"`
	EndsAt      time.Time           `json:"ends_at"`
	TicketTypes []TicketTypeRequest `json:"ticket_types"`
}
