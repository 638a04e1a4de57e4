package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	CatalogExchange = "events"
	ExchangeKind    = "topic"
	CatalogQueue    = "showpass.catalog"
)

// CatalogRoutingKeys are the event catalog messages the service follows.
var CatalogRoutingKeys = []string{"event.created", "event.updated"}

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewConsumer(url string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	fail := func(step string, err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq %s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(CatalogExchange, ExchangeKind, true, false, false, false, nil); err != nil {
		return fail("exchange declare", err)
	}

	q, err := ch.QueueDeclare(CatalogQueue, true, false, false, false, nil)
	if err != nil {
		return fail("queue declare", err)
	}

	for _, key := range CatalogRoutingKeys {
		if err := ch.QueueBind(q.Name, key, CatalogExchange, false, nil); err != nil {
			return fail("queue bind "+key, err)
		}
	}

	// One unacked catalog update at a time keeps upserts ordered.
	if err := ch.Qos(1, 0, false); err != nil {
		return fail("qos", err)
	}

	return &Consumer{conn: conn, channel: ch, queue: q.Name}, nil
}

func (c *Consumer) Consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack = false, we ack manually after processing
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume: %w", err)
	}

	logrus.WithField("queue", c.queue).Info("consuming catalog updates")
	return msgs, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
