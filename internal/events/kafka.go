package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every message to one topic, keyed by partition key so
// events for the same order land on the same partition.
type KafkaPublisher struct {
	w      kafkaWriter
	closed atomic.Bool
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventName)},
			{Key: "event_id", Value: []byte(msg.EventID)},
			{Key: "routing_key", Value: []byte(msg.RoutingKey)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.w.Close()
}
