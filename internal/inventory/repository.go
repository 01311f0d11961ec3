package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Executor is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
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

// WithTx returns a copy of the repository bound to tx. Row locks taken through
// the copy are held until tx ends.
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{pool: r.pool, exec: tx, tx: tx}
}

const productColumns = `id, name, unit_price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// LockAndRead takes FOR UPDATE locks on the given products and returns their
// current state. Locks are acquired in ascending id order so that two
// transactions touching overlapping product sets cannot deadlock. Ids with no
// row are absent from the result.
func (r *PostgresRepository) LockAndRead(ctx context.Context, productIDs []string) (map[string]Product, error) {
	if r.tx == nil {
		return nil, &PreconditionError{Op: "LockAndRead"}
	}

	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.exec.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return out, nil
}

// ConditionalDecrement subtracts amount from the product's stock only if at
// least amount units remain. It reports whether the decrement applied; a
// shortfall is not an error.
func (r *PostgresRepository) ConditionalDecrement(ctx context.Context, productID string, amount int) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	tag, err := r.exec.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
	`, productID, amount)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.exec.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (Product, error) {
	p, err := scanProduct(r.exec.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, in NewProduct) (Product, error) {
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	p, err := scanProduct(r.exec.QueryRow(ctx, `
		INSERT INTO products (id, name, unit_price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING `+productColumns,
		uuid.NewString(), in.Name, in.UnitPrice, in.Stock))
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// Update applies an administrative edit under the same row lock checkout
// uses, so a stock edit serialises with in-flight checkouts.
func (r *PostgresRepository) Update(ctx context.Context, productID string, upd ProductUpdate) (Product, error) {
	var out Product
	err := r.inTx(ctx, func(tx *PostgresRepository) error {
		locked, err := tx.LockAndRead(ctx, []string{productID})
		if err != nil {
			return err
		}
		current, ok := locked[productID]
		if !ok {
			return ErrNotFound
		}
		next, err := upd.apply(current)
		if err != nil {
			return err
		}
		out, err = scanProduct(tx.exec.QueryRow(ctx, `
			UPDATE products SET name = $2, unit_price = $3, stock = $4, updated_at = now()
			WHERE id = $1
			RETURNING `+productColumns,
			productID, next.Name, next.UnitPrice, next.Stock))
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return nil
	})
	return out, err
}

// Delete removes the product and any cart lines still pointing at it.
// Order lines keep their product id.
func (r *PostgresRepository) Delete(ctx context.Context, productID string) error {
	return r.inTx(ctx, func(tx *PostgresRepository) error {
		if _, err := tx.exec.Exec(ctx, `DELETE FROM cart_items WHERE product_id = $1`, productID); err != nil {
			return fmt.Errorf("delete cart lines: %w", err)
		}
		tag, err := tx.exec.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// inTx runs fn on the bound transaction, or on a fresh one committed when fn succeeds.
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
