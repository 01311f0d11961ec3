package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type NewProduct struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Stock     int             `json:"stock"`
}

func (p NewProduct) Validate() error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if p.UnitPrice.IsNegative() {
		return invalid("unitPrice must not be negative")
	}
	if p.Stock < 0 {
		return invalid("stock must not be negative")
	}
	return nil
}

// ProductUpdate is a partial edit; nil fields are left unchanged.
type ProductUpdate struct {
	Name      *string          `json:"name,omitempty"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
	Stock     *int             `json:"stock,omitempty"`
}

func (u ProductUpdate) apply(p Product) (Product, error) {
	if u.Name != nil {
		if *u.Name == "" {
			return p, invalid("name is required")
		}
		p.Name = *u.Name
	}
	if u.UnitPrice != nil {
		if u.UnitPrice.IsNegative() {
			return p, invalid("unitPrice must not be negative")
		}
		p.UnitPrice = *u.UnitPrice
	}
	if u.Stock != nil {
		if *u.Stock < 0 {
			return p, invalid("stock must not be negative")
		}
		p.Stock = *u.Stock
	}
	return p, nil
}
