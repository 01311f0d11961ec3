package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes to the topic exchange shared by all services.
type RabbitPublisher struct {
	ch     amqpChannel
	closed atomic.Bool
}

func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return newRabbitPublisher(ch)
}

func newRabbitPublisher(ch amqpChannel) (*RabbitPublisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &RabbitPublisher{ch: ch}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg Message) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.EventID,
			Type:         msg.EventName,
			Timestamp:    time.Now().UTC(),
			Body:         msg.Body,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.ch.Close()
}

func declareEventsExchange(ch amqpChannel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
