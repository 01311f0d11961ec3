package events

import (
	"context"
	"fmt"
	"time"
)

// EventEnvelope is the shared v1 envelope. It is generic so each event
// carries a strongly typed payload.
type EventEnvelope[T any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CausationID   string    `json:"causationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	Sequence      *int64    `json:"sequence,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	Schema        string    `json:"schema"`
	Payload       T         `json:"payload"`
}

// EnvelopeMetadata carries correlation/causation context for emitted events.
type EnvelopeMetadata struct {
	CorrelationID string
	CausationID   string
}

func (e EventEnvelope[T]) Validate(expectedName string, expectedVersion int) error {
	if e.EventName != expectedName {
		return fmt.Errorf("unexpected eventName: %s", e.EventName)
	}
	if e.EventVersion != expectedVersion {
		return fmt.Errorf("unexpected eventVersion: %d", e.EventVersion)
	}
	if e.PartitionKey == "" {
		return fmt.Errorf("missing partitionKey")
	}
	if e.EventID == "" {
		return fmt.Errorf("missing eventId")
	}
	return nil
}

type metadataKey struct{}

// WithMetadata attaches envelope metadata to ctx for producers further down the call chain.
func WithMetadata(ctx context.Context, meta EnvelopeMetadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, meta)
}

func MetadataFrom(ctx context.Context) EnvelopeMetadata {
	meta, _ := ctx.Value(metadataKey{}).(EnvelopeMetadata)
	return meta
}
