package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Executor interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type DBPool interface {
	Executor
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type PostgresRepository struct {
	pool DBPool
	exec Executor
	tx   pgx.Tx
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool, exec: pool}
}

// WithTx returns a copy of the repository that runs its statements on tx.
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{pool: r.pool, exec: tx, tx: tx}
}

const lineQuery = `
	SELECT c.id, c.user_id, c.product_id, c.quantity,
		COALESCE(p.name, ''), COALESCE(p.unit_price, 0), COALESCE(p.stock, 0), p.id IS NULL
	FROM cart_items c LEFT JOIN products p ON p.id = c.product_id
	WHERE c.user_id = $1 ORDER BY c.id`

// LinesForUser returns the user's lines in insertion order. Lines whose
// product was deleted are returned with Missing set rather than dropped.
func (r *PostgresRepository) LinesForUser(ctx context.Context, userID string) ([]Line, error) {
	return r.queryLines(ctx, lineQuery, userID)
}

// LockLinesForUser reads the user's lines like LinesForUser and holds a row
// lock on each of them until the transaction ends. A concurrent checkout of
// the same cart waits here and then sees the lines the winner deleted.
func (r *PostgresRepository) LockLinesForUser(ctx context.Context, userID string) ([]Line, error) {
	if r.tx == nil {
		return nil, ErrNoTransaction
	}
	return r.queryLines(ctx, lineQuery+` FOR UPDATE OF c`, userID)
}

func (r *PostgresRepository) queryLines(ctx context.Context, query, userID string) ([]Line, error) {
	rows, err := r.exec.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.Name, &l.UnitPrice, &l.Stock, &l.Missing); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	return lines, nil
}

// ClearForUser deletes every line the user owns and returns how many went.
// Clearing an empty cart returns 0.
func (r *PostgresRepository) ClearForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.exec.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Add puts up to qty units of a product in the cart, capped so the line never
// exceeds current stock. A qty below 1 counts as 1.
func (r *PostgresRepository) Add(ctx context.Context, userID, productID string, qty int) (AddResult, error) {
	if qty < 1 {
		qty = 1
	}

	var res AddResult
	err := r.inTx(ctx, func(tx *PostgresRepository) error {
		stock, err := tx.stockOf(ctx, productID)
		if err != nil {
			return err
		}

		var inCart int
		err = tx.exec.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID).Scan(&inCart)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read cart line: %w", err)
		}

		headroom := stock - inCart
		res = AddResult{InCart: inCart, Available: stock}
		if headroom <= 0 {
			return ErrStockLimit
		}
		res.Added = min(qty, headroom)
		res.Limited = res.Added < qty

		err = tx.exec.QueryRow(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
			RETURNING quantity
		`, userID, productID, res.Added).Scan(&res.InCart)
		if err != nil {
			return fmt.Errorf("upsert cart line: %w", err)
		}
		return nil
	})
	return res, err
}

// SetQuantity replaces the line's quantity. Zero removes the line.
func (r *PostgresRepository) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty == 0 {
		return r.Remove(ctx, userID, productID)
	}

	return r.inTx(ctx, func(tx *PostgresRepository) error {
		stock, err := tx.stockOf(ctx, productID)
		if err != nil {
			return err
		}
		if qty > stock {
			return ErrStockLimit
		}
		_, err = tx.exec.Exec(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
		`, userID, productID, qty)
		if err != nil {
			return fmt.Errorf("set cart quantity: %w", err)
		}
		return nil
	})
}

// Remove deletes a single line; removing an absent line is not an error.
func (r *PostgresRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.exec.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

// Count returns the total number of units in the user's cart.
func (r *PostgresRepository) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.exec.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cart: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) stockOf(ctx context.Context, productID string) (int, error) {
	var stock int
	err := r.exec.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return stock, nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *PostgresRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(r.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
