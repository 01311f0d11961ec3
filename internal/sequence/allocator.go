package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrEmptyPartition = errors.New("partition key is required")

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Allocator hands out gap-free, per-partition event sequence numbers. Run it
// on the transaction that writes the event so a rollback returns the number.
type Allocator struct {
	q Querier
}

func NewAllocator(q Querier) *Allocator {
	return &Allocator{q: q}
}

func (a *Allocator) WithTx(tx pgx.Tx) *Allocator {
	return &Allocator{q: tx}
}

func (a *Allocator) Next(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, ErrEmptyPartition
	}
	var seq int64
	err := a.q.QueryRow(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence)
		VALUES ($1, 1)
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = now()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", partitionKey, err)
	}
	return seq, nil
}
