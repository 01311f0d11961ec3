package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/sequence"
)

// NotifyChannel is the LISTEN/NOTIFY channel that wakes the relay.
const NotifyChannel = "outbox_events"

type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Writer appends events to the outbox table. Bind it to the business
// transaction with WithTx so the event commits or rolls back with it.
type Writer struct {
	exec     Executor
	seq      *sequence.Allocator
	producer string
}

func NewWriter(exec Executor, producer string) *Writer {
	return &Writer{exec: exec, seq: sequence.NewAllocator(exec), producer: producer}
}

func (w *Writer) WithTx(tx pgx.Tx) *Writer {
	return &Writer{exec: tx, seq: w.seq.WithTx(tx), producer: w.producer}
}

// OrderPlaced enqueues an OrderPlaced v1 envelope and returns its event id.
func (w *Writer) OrderPlaced(ctx context.Context, payload events.OrderPlacedPayload, meta events.EnvelopeMetadata) (string, error) {
	seq, err := w.seq.Next(ctx, payload.OrderID)
	if err != nil {
		return "", fmt.Errorf("reserve sequence: %w", err)
	}

	env := events.BuildOrderPlacedEnvelope(payload, seq, w.producer, meta)
	if err := env.Validate(events.OrderPlacedEventName, events.OrderPlacedEventVersion); err != nil {
		return "", fmt.Errorf("invalid OrderPlaced envelope: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal OrderPlaced envelope: %w", err)
	}

	rec := Record{
		EventID:      env.EventID,
		EventName:    env.EventName,
		RoutingKey:   events.OrderPlacedRoutingKey,
		PartitionKey: env.PartitionKey,
		Body:         body,
	}
	if err := w.enqueue(ctx, rec); err != nil {
		return "", err
	}
	return env.EventID, nil
}

func (w *Writer) enqueue(ctx context.Context, rec Record) error {
	_, err := w.exec.Exec(ctx, `
		INSERT INTO outbox (event_id, event_name, routing_key, partition_key, body)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.EventID, rec.EventName, rec.RoutingKey, rec.PartitionKey, rec.Body)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	// delivered on commit only
	if _, err := w.exec.Exec(ctx, `SELECT pg_notify($1, '')`, NotifyChannel); err != nil {
		return fmt.Errorf("notify outbox: %w", err)
	}
	return nil
}
