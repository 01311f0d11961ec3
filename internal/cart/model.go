package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStockLimit      = errors.New("not enough stock")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrNoTransaction   = errors.New("cart lock requires a transaction")
)

// Line is a cart line joined with the product it references. Name, UnitPrice
// and Stock are a display projection; Missing is set when the product row no
// longer exists.
type Line struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"userId"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Stock     int             `json:"stock"`
	Missing   bool            `json:"missing,omitempty"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the page view of a user's lines. Total is advisory; checkout
// recomputes it from locked product rows.
type Cart struct {
	UserID string          `json:"userId"`
	Lines  []Line          `json:"lines"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

func Summarize(userID string, lines []Line) Cart {
	c := Cart{UserID: userID, Lines: lines, Total: decimal.Zero}
	if c.Lines == nil {
		c.Lines = []Line{}
	}
	for _, l := range lines {
		c.Count += l.Quantity
		if !l.Missing {
			c.Total = c.Total.Add(l.Subtotal())
		}
	}
	return c
}

// AddResult reports how much of a requested add was applied. Limited is set
// when the request was capped by available stock.
type AddResult struct {
	Added     int  `json:"added"`
	InCart    int  `json:"inCart"`
	Available int  `json:"available"`
	Limited   bool `json:"limited"`
}
