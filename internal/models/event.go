package models

import "time"

// Event is the catalog entry bookings reference. The engine never edits
// it except through catalog sync.
type Event struct {
	ID          string       `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	Venue       string       `json:"venue"`
	StartsAt    time.Time    `gorm:"not null" json:"starts_at"`
	EndsAt      time.Time    `gorm:"not null" json:"ends_at"`
	TicketTypes []TicketType `gorm:"foreignKey:EventID" json:"ticket_types,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Capacity is the event-level aggregate, derived from its ticket types.
func (e *Event) Capacity() (capacity, sold int) {
	for _, tt := range e.TicketTypes {
		capacity += tt.Capacity
		sold += tt.Sold
	}
	return capacity, sold
}

// Ended reports whether the event is over at now.
func (e *Event) Ended(now time.Time) bool {
	return !now.Before(e.EndsAt)
}

// TicketType is a priced admission category with a fixed capacity. Sold
// is only ever changed by the inventory ledger.
type TicketType struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	EventID   string    `gorm:"type:varchar(64);not null;index" json:"event_id"`
	Name      string    `gorm:"not null" json:"name"`
	UnitPrice int64     `gorm:"not null;default:0" json:"unit_price"`
	Capacity  int       `gorm:"not null;check:chk_ticket_types_capacity,capacity >= 0" json:"capacity"`
	Sold      int       `gorm:"not null;default:0;check:chk_ticket_types_sold,sold >= 0 AND sold <= capacity" json:"sold"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *TicketType) Remaining() int {
	return t.Capacity - t.Sold
}

func (t *TicketType) Free() bool {
	return t.UnitPrice == 0
}
