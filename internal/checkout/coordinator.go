package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/order"
)

const tracerName = "github.com/andreasstove999/ecommerce-system/storefront-go/internal/checkout"

type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type InventoryStore interface {
	LockAndRead(ctx context.Context, productIDs []string) (map[string]inventory.Product, error)
	ConditionalDecrement(ctx context.Context, productID string, amount int) (bool, error)
}

// CartStore reads the cart under row locks held until the transaction ends.
type CartStore interface {
	LockLinesForUser(ctx context.Context, userID string) ([]cart.Line, error)
	ClearForUser(ctx context.Context, userID string) (int64, error)
}

type OrderLedger interface {
	CreateOrder(ctx context.Context, userID string, total decimal.Decimal) (string, error)
	CreateOrderLines(ctx context.Context, orderID string, lines []order.Item) error
}

type EventWriter interface {
	OrderPlaced(ctx context.Context, payload events.OrderPlacedPayload, meta events.EnvelopeMetadata) (string, error)
}

// Stores are the collaborators of one attempt, all bound to its transaction.
// Events may be nil.
type Stores struct {
	Inventory InventoryStore
	Cart      CartStore
	Orders    OrderLedger
	Events    EventWriter
}

// Binder returns the stores bound to tx.
type Binder func(tx pgx.Tx) Stores

type Observer interface {
	ObserveCheckout(outcome string, d time.Duration)
}

type Config struct {
	// LockTimeout bounds how long the attempt waits for product row locks.
	// Zero leaves the server default.
	LockTimeout time.Duration
	Logger      *zap.Logger
	Metrics     Observer
	// OnCommitted runs after a successful commit, outside the transaction.
	OnCommitted func(userID string)

	// Now stamps the order-placed event; nil means time.Now.
	Now func() time.Time
}

// Coordinator runs checkout as one transaction across inventory, cart and
// order ledger.
type Coordinator struct {
	db     TxBeginner
	bind   Binder
	cfg    Config
	now    func() time.Time
	tracer trace.Tracer
}

func NewCoordinator(db TxBeginner, bind Binder, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		db:     db,
		bind:   bind,
		cfg:    cfg,
		now:    cfg.Now,
		tracer: otel.Tracer(tracerName),
	}
}

// Checkout converts the user's cart into a pending order. It never retries;
// every non-success outcome leaves the database as it was.
func (c *Coordinator) Checkout(ctx context.Context, userID string) (out Outcome) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() {
		c.finish(ctx, span, userID, out, time.Since(start))
	}()

	tx, err := c.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Outcome{
			Kind:  OutcomeInfrastructure,
			Err:   fmt.Errorf("begin checkout tx: %w", err),
			State: StateRolledBack,
		}
	}

	out = c.run(ctx, tx, userID)
	if out.Kind == OutcomeSuccess {
		out.State = StateCommitted
		return out
	}

	out.FailedAt = out.State
	out.State = StateRolledBack
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logging.FromOr(ctx, c.cfg.Logger).Warn("checkout rollback failed", zap.String("user_id", userID), zap.Error(err))
	}
	return out
}

func (c *Coordinator) run(ctx context.Context, tx pgx.Tx, userID string) Outcome {
	state := StateStarted
	infra := func(step string, err error) Outcome {
		return Outcome{Kind: OutcomeInfrastructure, Err: fmt.Errorf("%s: %w", step, err), State: state}
	}

	if c.cfg.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeoutSetting(c.cfg.LockTimeout)); err != nil {
			return infra("set lock timeout", err)
		}
	}
	s := c.bind(tx)

	lines, err := s.Cart.LockLinesForUser(ctx, userID)
	if err != nil {
		return infra("load cart", err)
	}
	state = StateCartLoaded
	if len(lines) == 0 {
		return Outcome{Kind: OutcomeEmptyCart, State: state}
	}

	locked, err := s.Inventory.LockAndRead(ctx, productIDs(lines))
	if err != nil {
		return infra("lock products", err)
	}
	if shortages := findShortages(lines, locked); len(shortages) > 0 {
		return Outcome{Kind: OutcomeInsufficientStock, Shortages: shortages, State: state}
	}
	state = StateStockValidated

	items, total := priceLines(lines, locked)

	orderID, err := s.Orders.CreateOrder(ctx, userID, total)
	if err != nil {
		return infra("create order", err)
	}
	state = StateOrderCreated

	if err := s.Orders.CreateOrderLines(ctx, orderID, items); err != nil {
		return infra("create order lines", err)
	}
	state = StateLinesCreated

	for _, it := range items {
		ok, err := s.Inventory.ConditionalDecrement(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return infra("decrement stock", err)
		}
		if !ok {
			return Outcome{
				Kind:          OutcomeDecrementRace,
				OrderID:       orderID,
				RaceProductID: it.ProductID,
				Err:           fmt.Errorf("%w: product %s", ErrDecrementRace, it.ProductID),
				State:         state,
			}
		}
	}
	state = StateStockDecremented

	removed, err := s.Cart.ClearForUser(ctx, userID)
	if err != nil {
		return infra("clear cart", err)
	}
	if removed != int64(len(lines)) {
		return infra("clear cart", fmt.Errorf("%w: locked %d lines, removed %d", ErrCartChanged, len(lines), removed))
	}
	state = StateCartCleared

	if s.Events != nil {
		payload := events.OrderPlacedPayload{
			OrderID:     orderID,
			UserID:      userID,
			Items:       placedItems(items),
			TotalAmount: total,
			Status:      string(order.StatusPending),
			PlacedAt:    c.now().UTC(),
		}
		if _, err := s.Events.OrderPlaced(ctx, payload, events.MetadataFrom(ctx)); err != nil {
			return infra("enqueue order placed", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return infra("commit", err)
	}
	return Outcome{Kind: OutcomeSuccess, OrderID: orderID, Total: total, State: StateCommitted}
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, userID string, out Outcome, elapsed time.Duration) {
	span.SetAttributes(
		attribute.String("checkout.outcome", string(out.Kind)),
		attribute.String("checkout.state", out.State.String()),
	)
	if out.OrderID != "" {
		span.SetAttributes(attribute.String("order.id", out.OrderID))
	}
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Kind))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveCheckout(string(out.Kind), elapsed)
	}

	log := logging.FromOr(ctx, c.cfg.Logger).With(
		zap.String("user_id", userID),
		zap.String("outcome", string(out.Kind)),
		zap.Duration("elapsed", elapsed),
	)
	switch out.Kind {
	case OutcomeSuccess:
		log.Info("checkout committed", zap.String("order_id", out.OrderID), zap.String("total", out.Total.StringFixed(2)))
		if c.cfg.OnCommitted != nil {
			c.cfg.OnCommitted(userID)
		}
	case OutcomeEmptyCart:
		log.Info("checkout rejected: empty cart")
	case OutcomeInsufficientStock:
		log.Info("checkout rejected: insufficient stock", zap.Any("shortages", out.Shortages))
	case OutcomeDecrementRace:
		log.Error("checkout decrement race: stock changed under row lock",
			zap.String("product_id", out.RaceProductID),
			zap.String("order_id", out.OrderID),
			zap.String("failed_at", out.FailedAt.String()),
			zap.Error(out.Err),
		)
	default:
		log.Error("checkout failed",
			zap.String("failed_at", out.FailedAt.String()),
			zap.Bool("retryable", out.Retryable()),
			zap.Error(out.Err),
		)
	}
}

func lockTimeoutSetting(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", ms)
}

func productIDs(lines []cart.Line) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// findShortages compares the requested quantity per product with its locked
// stock. A product with no row counts as zero available.
func findShortages(lines []cart.Line, locked map[string]inventory.Product) []Shortage {
	requested := make(map[string]int, len(lines))
	seen := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := requested[l.ProductID]; !ok {
			seen = append(seen, l.ProductID)
		}
		requested[l.ProductID] += l.Quantity
	}

	var out []Shortage
	for _, id := range seen {
		available := 0
		if p, ok := locked[id]; ok {
			available = p.Stock
		}
		if requested[id] > available {
			out = append(out, Shortage{ProductID: id, Requested: requested[id], Available: available})
		}
	}
	return out
}

// priceLines snapshots each line's unit price from the locked product row.
func priceLines(lines []cart.Line, locked map[string]inventory.Product) ([]order.Item, decimal.Decimal) {
	items := make([]order.Item, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		it := order.Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: locked[l.ProductID].UnitPrice,
		}
		items = append(items, it)
		total = total.Add(it.Subtotal())
	}
	return items, total
}

func placedItems(items []order.Item) []events.OrderPlacedItem {
	out := make([]events.OrderPlacedItem, 0, len(items))
	for _, it := range items {
		out = append(out, events.OrderPlacedItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}
