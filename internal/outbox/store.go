package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
)

type Record struct {
	ID           int64
	EventID      string
	EventName    string
	RoutingKey   string
	PartitionKey string
	Body         []byte
	CreatedAt    time.Time
}

func (r Record) Message() events.Message {
	return events.Message{
		EventID:    r.EventID,
		EventName:  r.EventName,
		RoutingKey: r.RoutingKey,
		Key:        r.PartitionKey,
		Body:       r.Body,
	}
}

// SQLStore reads and marks outbox rows over database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ProcessBatch locks up to limit unsent rows in id order, hands each to fn and
// marks it sent when fn succeeds. It stops at the first fn error so later rows
// of the same partition are not delivered ahead of it; rows marked before the
// failure are still committed. SKIP LOCKED lets several relays share the table.
func (s *SQLStore) ProcessBatch(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_id, event_name, routing_key, partition_key, body, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}

	var batch []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventName, &rec.RoutingKey, &rec.PartitionKey, &rec.Body, &rec.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		batch = append(batch, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows: %w", err)
	}

	sent := 0
	var fnErr error
	for _, rec := range batch {
		if fnErr = fn(ctx, rec); fnErr != nil {
			break
		}
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, rec.ID); err != nil {
			return 0, fmt.Errorf("mark outbox sent: %w", err)
		}
		sent++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return sent, fnErr
}
