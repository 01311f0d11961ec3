package checkout

import (
	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/outbox"
)

// PostgresBinder rebinds the Postgres repositories to each checkout
// transaction. A nil writer disables the order-placed event.
func PostgresBinder(inv *inventory.PostgresRepository, carts *cart.PostgresRepository, orders *order.PostgresRepository, writer *outbox.Writer) Binder {
	return func(tx pgx.Tx) Stores {
		s := Stores{
			Inventory: inv.WithTx(tx),
			Cart:      carts.WithTx(tx),
			Orders:    orders.WithTx(tx),
		}
		if writer != nil {
			s.Events = writer.WithTx(tx)
		}
		return s
	}
}
