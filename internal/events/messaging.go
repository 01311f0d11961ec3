package events

import (
	"context"
	"errors"
)

const (
	EventsExchange        = "ecommerce.events"
	OrderPlacedRoutingKey = "order.placed.v1"
)

var ErrPublisherClosed = errors.New("publisher closed")

// Message is one outbox row on its way to a broker.
type Message struct {
	EventID    string
	EventName  string
	RoutingKey string
	Key        string
	Body       []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
