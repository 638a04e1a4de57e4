package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/pricing"
	"github.com/Eursukkul/showpass/internal/repository"
)

var (
	ErrInvalidEvent      = errors.New("invalid event")
	ErrCapacityBelowSold = repository.ErrCapacityBelowSold
)

// CatalogService keeps the local copy of the event catalog that bookings
// are checked against.
type CatalogService interface {
	Register(ctx context.Context, event *models.Event) error
	Inventory(ctx context.Context, eventID string) (*models.Event, error)
}

type catalogService struct {
	repo repository.EventRepository
}

func NewCatalogService(repo repository.EventRepository) CatalogService {
	return &catalogService{repo: repo}
}

// Register creates or updates an event and its ticket types. Missing ids
// are generated.
func (s *catalogService) Register(ctx context.Context, event *models.Event) error {
	if err := checkEvent(event); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	for i := range event.TicketTypes {
		if event.TicketTypes[i].ID == "" {
			event.TicketTypes[i].ID = uuid.NewString()
		}
		event.TicketTypes[i].EventID = event.ID
	}

	if err := s.repo.Upsert(ctx, event); err != nil {
		if errors.Is(err, repository.ErrCapacityBelowSold) {
			return err
		}
		return fmt.Errorf("upsert event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"ticket_types": len(event.TicketTypes),
	}).Info("Event registered")
	return nil
}

func (s *catalogService) Inventory(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	return event, nil
}

func checkEvent(event *models.Event) error {
	event.Name = strings.TrimSpace(event.Name)
	switch {
	case event.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	case event.EndsAt.IsZero() || !event.EndsAt.After(event.StartsAt):
		return fmt.Errorf("%w: ends_at must be after starts_at", ErrInvalidEvent)
	case len(event.TicketTypes) == 0:
		return fmt.Errorf("%w: at least one ticket type is required", ErrInvalidEvent)
	}

	seen := make(map[string]bool, len(event.TicketTypes))
	for i, tt := range event.TicketTypes {
		switch {
		case strings.TrimSpace(tt.Name) == "":
			return fmt.Errorf("%w: ticket_types[%d].name is required", ErrInvalidEvent, i)
		case tt.UnitPrice < 0:
			return fmt.Errorf("%w: ticket_types[%d].unit_price must not be negative", ErrInvalidEvent, i)
		case tt.UnitPrice > pricing.MaxUnitPrice:
			return fmt.Errorf("%w: ticket_types[%d].unit_price must not exceed %d", ErrInvalidEvent, i, pricing.MaxUnitPrice)
		case tt.Capacity < 0:
			return fmt.Errorf("%w: ticket_types[%d].capacity must not be negative", ErrInvalidEvent, i)
		case tt.ID != "" && seen[tt.ID]:
			return fmt.Errorf("%w: duplicate ticket type id %q", ErrInvalidEvent, tt.ID)
		}
		seen[tt.ID] = true
	}
	return nil
}
