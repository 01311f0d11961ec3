package checkout

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeEmptyCart         OutcomeKind = "empty_cart"
	OutcomeInsufficientStock OutcomeKind = "insufficient_stock"
	OutcomeDecrementRace     OutcomeKind = "decrement_race"
	OutcomeInfrastructure    OutcomeKind = "infrastructure"
)

// State is the furthest step a checkout attempt reached.
type State int

const (
	StateStarted State = iota
	StateCartLoaded
	StateStockValidated
	StateOrderCreated
	StateLinesCreated
	StateStockDecremented
	StateCartCleared
	StateCommitted
	StateRolledBack
)

var stateNames = [...]string{
	StateStarted:          "started",
	StateCartLoaded:       "cart_loaded",
	StateStockValidated:   "stock_validated",
	StateOrderCreated:     "order_created",
	StateLinesCreated:     "lines_created",
	StateStockDecremented: "stock_decremented",
	StateCartCleared:      "cart_cleared",
	StateCommitted:        "committed",
	StateRolledBack:       "rolled_back",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Shortage names a product whose locked stock could not cover the cart.
type Shortage struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

var (
	ErrDecrementRace = errors.New("conditional decrement failed under row lock")

	// ErrCartChanged means a line was added to the cart after it was locked.
	ErrCartChanged = errors.New("cart changed during checkout")
)

// Outcome is the result of one checkout attempt. Only OutcomeSuccess commits.
// State is StateCommitted or StateRolledBack; FailedAt is the last state
// reached before a rollback.
type Outcome struct {
	Kind      OutcomeKind
	OrderID   string
	Total     decimal.Decimal
	Shortages []Shortage

	// RaceProductID is set for OutcomeDecrementRace.
	RaceProductID string
	Err           error
	State         State
	FailedAt      State
}

func (o Outcome) Committed() bool {
	return o.Kind == OutcomeSuccess
}

// Retryable reports whether an infrastructure failure is transient: a lock or
// serialization conflict, or a cart that changed underneath the attempt.
func (o Outcome) Retryable() bool {
	if o.Kind != OutcomeInfrastructure || o.Err == nil {
		return false
	}
	if errors.Is(o.Err, ErrCartChanged) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(o.Err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "55P03", "40P01", "40001":
		return true
	default:
		return false
	}
}
