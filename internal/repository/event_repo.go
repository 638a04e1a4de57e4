package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Eursukkul/showpass/internal/models"
)

type EventRepository interface {
	// Upsert creates or updates an event and its ticket types. A ticket
	// type's capacity may never be set below what it has already sold.
	Upsert(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	FindTicketType(ctx context.Context, id string) (*models.TicketType, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Upsert(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit("TicketTypes").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "venue", "starts_at", "ends_at", "updated_at"}),
		}).Create(event).Error
		if err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}

		for i := range event.TicketTypes {
			tt := &event.TicketTypes[i]
			tt.EventID = event.ID

			var existing models.TicketType
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "id = ?", tt.ID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				tt.Sold = 0
				if err := tx.Create(tt).Error; err != nil {
					return fmt.Errorf("create ticket type %s: %w", tt.ID, err)
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("lock ticket type %s: %w", tt.ID, err)
			}

			if tt.Capacity < existing.Sold {
				return fmt.Errorf("ticket type %s: %w", tt.ID, ErrCapacityBelowSold)
			}
			err = tx.Model(&existing).Updates(map[string]any{
				"name":       tt.Name,
				"unit_price": tt.UnitPrice,
				"capacity":   tt.Capacity,
			}).Error
			if err != nil {
				return fmt.Errorf("update ticket type %s: %w", tt.ID, err)
			}
			tt.Sold = existing.Sold
		}
		return nil
	})
}

func (r *eventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Preload("TicketTypes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

func (r *eventRepository) FindTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	return findTicketType(r.db.WithContext(ctx), id)
}

func findTicketType(db *gorm.DB, id string) (*models.TicketType, error) {
	var tt models.TicketType
	if err := db.First(&tt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket type: %w", err)
	}
	return &tt, nil
}
