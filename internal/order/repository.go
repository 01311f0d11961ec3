package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type Executor interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// maxLinesPerInsert keeps each order_items INSERT well under the 65535 bind
// parameter limit of the Postgres protocol.
const maxLinesPerInsert = 1000

type PostgresRepository struct {
	exec  Executor
	now   func() time.Time
	batch int
}

// NewPostgresRepository builds a ledger on exec. now stamps createdAt; nil
// means time.Now.
func NewPostgresRepository(exec Executor, now func() time.Time) *PostgresRepository {
	if now == nil {
		now = time.Now
	}
	return &PostgresRepository{exec: exec, now: now, batch: maxLinesPerInsert}
}

func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{exec: tx, now: r.now, batch: r.batch}
}

// CreateOrder inserts a pending order header and returns its id.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID string, total decimal.Decimal) (string, error) {
	id := uuid.NewString()
	_, err := r.exec.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, userID, total, StatusPending, r.now().UTC())
	if err != nil {
		return "", &PersistenceError{Op: "create order", Err: err}
	}
	return id, nil
}

// CreateOrderLines inserts the lines with one multi-row statement per batch.
// Run it on a transaction-bound repository so a failing batch leaves no lines.
func (r *PostgresRepository) CreateOrderLines(ctx context.Context, orderID string, lines []Item) error {
	batch := r.batch
	if batch <= 0 {
		batch = maxLinesPerInsert
	}
	for start := 0; start < len(lines); start += batch {
		end := min(start+batch, len(lines))
		if err := r.insertLines(ctx, orderID, lines[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) insertLines(ctx context.Context, orderID string, lines []Item) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES `)
	args := make([]any, 0, 1+3*len(lines))
	args = append(args, orderID)
	for i, l := range lines {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($1, $%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, l.ProductID, l.Quantity, l.UnitPrice)
	}

	if _, err := r.exec.Exec(ctx, sb.String(), args...); err != nil {
		return &PersistenceError{Op: "create order lines", Err: err}
	}
	return nil
}

const orderColumns = `id, user_id, total_amount, status, created_at`

func (r *PostgresRepository) GetByID(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.exec.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []Item{}
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first, with their lines.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	tag, err := r.exec.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	ids := []string{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []Item{}
		}
	}
	return orders, nil
}

func (r *PostgresRepository) itemsFor(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := r.exec.Query(ctx, `
		SELECT order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order_item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
