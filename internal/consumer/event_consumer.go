package consumer

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/service"
)

// EventConsumer keeps the local catalog in sync with the event service.
type EventConsumer struct {
	catalog service.CatalogService
}

func NewEventConsumer(catalog service.CatalogService) *EventConsumer {
	return &EventConsumer{catalog: catalog}
}

// Run handles deliveries until msgs is closed or ctx is done.
func (ec *EventConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logrus.Info("catalog delivery channel closed, stopping consumer")
				return nil
			}
			ec.handleMessage(ctx, msg)
		}
	}
}

func (ec *EventConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	log := logrus.WithField("routing_key", msg.RoutingKey)

	var payload dto.EventMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		log.WithError(err).Warn("dropping malformed catalog message")
		msg.Nack(false, false)
		return
	}

	event := toEvent(payload)
	log = log.WithField("event_id", event.ID)

	if err := ec.catalog.Register(ctx, event); err != nil {
		// Rejected payloads will never succeed; storage errors might.
		if errors.Is(err, service.ErrInvalidEvent) || errors.Is(err, service.ErrCapacityBelowSold) {
			log.WithError(err).Warn("dropping rejected catalog update")
			msg.Nack(false, false)
			return
		}
		log.WithError(err).Error("failed to sync event, requeueing")
		msg.Nack(false, true)
		return
	}

	log.WithField("name", event.Name).Info("synced event")
	msg.Ack(false)
}

func toEvent(m dto.EventMessage) *models.Event {
	event := &models.Event{
		ID:       m.ID,
		Name:     m.Name,
		Venue:    m.Venue,
		StartsAt: m.StartsAt,
		EndsAt:   m.EndsAt,
	}
	for _, tt := range m.TicketTypes {
		event.TicketTypes = append(event.TicketTypes, models.TicketType{
			ID:        tt.ID,
			EventID:   m.ID,
			Name:      tt.Name,
			UnitPrice: tt.UnitPrice,
			Capacity:  tt.Capacity,
		})
	}
	return event
}
