package dto

import (
	"time"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/validator"
)

type AttendeeResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CredentialResponse struct {
	ID               string     `json:"id"`
	AttendeeID       string     `json:"attendee_id,omitempty"`
	EventID          string     `json:"event_id"`
	Token            string     `json:"token"`
	VerificationCode string     `json:"verification_code"`
	Consumed         bool       `json:"consumed"`
	ConsumedAt       *time.Time `json:"consumed_at,omitempty"`
	Revoked          bool       `json:"revoked"`
}

type BookingResponse struct {
	ID              string               `json:"booking_id"`
	UserID          string               `json:"user_id"`
	EventID         string               `json:"event_id"`
	TicketTypeID    string               `json:"ticket_type_id"`
	Quantity        int                  `json:"quantity"`
	Status          models.BookingStatus `json:"status"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	Pricing         models.Pricing       `json:"pricing"`
	Attendees       []AttendeeResponse   `json:"attendees"`
	FailureReason   string               `json:"failure_reason,omitempty"`
	PaymentDeadline *time.Time           `json:"payment_deadline,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	ConfirmedAt     *time.Time           `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	Credentials     []CredentialResponse `json:"credentials,omitempty"`
}

type TicketTypeInventory struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Capacity  int    `json:"capacity"`
	Sold      int    `json:"sold"`
	Remaining int    `json:"remaining"`
}

// InventoryResponse shows per ticket type counts; the event totals are
// their sums.
type InventoryResponse struct {
	EventID     string                `json:"event_id"`
	Name        string                `json:"name"`
	StartsAt    time.Time             `json:"starts_at"`
	EndsAt      time.Time             `json:"ends_at"`
	Capacity    int                   `json:"capacity"`
	Sold        int                   `json:"sold"`
	Remaining   int                   `json:"remaining"`
	TicketTypes []TicketTypeInventory `json:"ticket_types"`
}

type CheckInResponse struct {
	CredentialID string    `json:"credential_id"`
	BookingID    string    `json:"booking_id"`
	AttendeeID   string    `json:"attendee_id,omitempty"`
	EventID      string    `json:"event_id"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

type ValidationErrorResponse struct {
	Message string                 `json:"message"`
	Errors  []validator.FieldError `json:"errors"`
}

type InsufficientInventoryResponse struct {
	Message   string `json:"message"`
	Remaining int    `json:"remaining"`
}

type AlreadyCheckedInResponse struct {
	Message     string    `json:"message"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

func ToBookingResponse(b *models.Booking, creds []models.Credential) BookingResponse {
	resp := BookingResponse{
		ID:              b.ID,
		UserID:          b.UserID,
		EventID:         b.EventID,
		TicketTypeID:    b.TicketTypeID,
		Quantity:        b.Quantity,
		Status:          b.Status,
		PaymentStatus:   b.PaymentStatus,
		Pricing:         b.Pricing,
		Attendees:       make([]AttendeeResponse, len(b.Attendees)),
		FailureReason:   b.FailureReason,
		PaymentDeadline: b.PaymentDeadline,
		CreatedAt:       b.CreatedAt,
		ConfirmedAt:     b.ConfirmedAt,
		CancelledAt:     b.CancelledAt,
	}
	for i, a := range b.Attendees {
		resp.Attendees[i] = AttendeeResponse{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone}
	}
	if len(creds) > 0 {
		resp.Credentials = ToCredentialResponses(creds)
	}
	return resp
}

func ToCredentialResponses(creds []models.Credential) []CredentialResponse {
	out := make([]CredentialResponse, len(creds))
	for i, c := range creds {
		out[i] = CredentialResponse{
			ID:               c.ID,
			AttendeeID:       c.AttendeeID,
			EventID:          c.EventID,
			Token:            c.Token,
			VerificationCode: c.VerificationCode,
			Consumed:         c.Consumed,
			ConsumedAt:       c.ConsumedAt,
			Revoked:          c.Revoked,
		}
	}
	return out
}

func ToInventoryResponse(e *models.Event) InventoryResponse {
	capacity, sold := e.Capacity()
	resp := InventoryResponse{
		EventID:     e.ID,
		Name:        e.Name,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		Capacity:    capacity,
		Sold:        sold,
		Remaining:   capacity - sold,
		TicketTypes: make([]TicketTypeInventory, len(e.TicketTypes)),
	}
	for i, tt := range e.TicketTypes {
		resp.TicketTypes[i] = TicketTypeInventory{
			ID:        tt.ID,
			Name:      tt.Name,
			UnitPrice: tt.UnitPrice,
			Capacity:  tt.Capacity,
			Sold:      tt.Sold,
			Remaining: tt.Remaining(),
		}
	}
	return resp
}
