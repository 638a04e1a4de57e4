package models

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is the ledger's provisional hold on a ticket type's
// capacity. A pending reservation past ExpiresAt is reclaimed.
type Reservation struct {
	ID           string            `gorm:"type:varchar(64);primaryKey" json:"id"`
	TicketTypeID string            `gorm:"type:varchar(64);not null;index" json:"ticket_type_id"`
	Quantity     int               `gorm:"not null" json:"quantity"`
	Status       ReservationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ExpiresAt    time.Time         `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
