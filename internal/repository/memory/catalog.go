// Package memory holds in-process implementations of the repositories,
// selected with STORAGE_DRIVER=memory and used by the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
)

// ticketSlot guards one ticket type. Every change to Sold happens while
// holding mu, which is what keeps sold <= capacity under concurrency.
type ticketSlot struct {
	mu sync.Mutex
	tt models.TicketType
}

// Catalog stores events and their ticket types.
type Catalog struct {
	mu          sync.RWMutex
	events      map[string]models.Event
	order       map[string][]string
	ticketTypes map[string]*ticketSlot
}

var _ repository.EventRepository = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{
		events:      make(map[string]models.Event),
		order:       make(map[string][]string),
		ticketTypes: make(map[string]*ticketSlot),
	}
}

func (c *Catalog) Upsert(_ context.Context, event *models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// existing slots stay locked from the sold check through the write,
	// in id order so two upserts cannot deadlock
	locked := c.lockSlots(event.TicketTypes)
	defer func() {
		for _, slot := range locked {
			slot.mu.Unlock()
		}
	}()

	for _, tt := range event.TicketTypes {
		if slot, ok := locked[tt.ID]; ok && tt.Capacity < slot.tt.Sold {
			return repository.ErrCapacityBelowSold
		}
	}

	now := time.Now()
	stored := *event
	stored.TicketTypes = nil
	if prev, ok := c.events[event.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	c.events[event.ID] = stored

	for i := range event.TicketTypes {
		tt := &event.TicketTypes[i]
		tt.EventID = event.ID
		slot, ok := locked[tt.ID]
		if !ok {
			tt.Sold = 0
			tt.CreatedAt, tt.UpdatedAt = now, now
			c.ticketTypes[tt.ID] = &ticketSlot{tt: *tt}
			c.order[event.ID] = append(c.order[event.ID], tt.ID)
			continue
		}
		slot.tt.Name = tt.Name
		slot.tt.UnitPrice = tt.UnitPrice
		slot.tt.Capacity = tt.Capacity
		slot.tt.UpdatedAt = now
		tt.Sold = slot.tt.Sold
	}
	return nil
}

// lockSlots locks the stored slots of the given ticket types. c.mu must
// be held for writing.
func (c *Catalog) lockSlots(ticketTypes []models.TicketType) map[string]*ticketSlot {
	ids := make([]string, 0, len(ticketTypes))
	for _, tt := range ticketTypes {
		ids = append(ids, tt.ID)
	}
	sort.Strings(ids)

	locked := make(map[string]*ticketSlot, len(ids))
	for _, id := range ids {
		slot, ok := c.ticketTypes[id]
		if !ok || locked[id] != nil {
			continue
		}
		slot.mu.Lock()
		locked[id] = slot
	}
	return locked
}

func (c *Catalog) FindByID(_ context.Context, id string) (*models.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	event, ok := c.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, ttID := range c.order[id] {
		slot := c.ticketTypes[ttID]
		slot.mu.Lock()
		event.TicketTypes = append(event.TicketTypes, slot.tt)
		slot.mu.Unlock()
	}
	return &event, nil
}

func (c *Catalog) FindTicketType(_ context.Context, id string) (*models.TicketType, error) {
	slot, ok := c.slot(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	slot.mu.Lock()
	tt := slot.tt
	slot.mu.Unlock()
	return &tt, nil
}

func (c *Catalog) slot(id string) (*ticketSlot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, ok := c.ticketTypes[id]
	return slot, ok
}
