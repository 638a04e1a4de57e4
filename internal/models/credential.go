package models

import "time"

// Credential is an entry pass bound to (booking, attendee, event). An
// empty AttendeeID marks a booking-level legacy credential.
type Credential struct {
	ID               string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	BookingID        string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_credential_seat" json:"booking_id"`
	AttendeeID       string     `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_credential_seat" json:"attendee_id,omitempty"`
	EventID          string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_credential_code" json:"event_id"`
	Token            string     `gorm:"not null;uniqueIndex" json:"token"`
	VerificationCode string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_credential_code" json:"verification_code"`
	Consumed         bool       `gorm:"not null;default:false" json:"consumed"`
	ConsumedAt       *time.Time `json:"consumed_at,omitempty"`
	Revoked          bool       `gorm:"not null;default:false" json:"revoked"`
	IssuedAt         time.Time  `gorm:"not null" json:"issued_at"`
}
