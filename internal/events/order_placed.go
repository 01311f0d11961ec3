package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderPlacedEventName    = "OrderPlaced"
	OrderPlacedEventVersion = 1
	orderPlacedSchema       = "contracts/events/order/OrderPlaced.v1.payload.schema.json"
)

type OrderPlacedItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderPlacedPayload is the v1 payload emitted when checkout commits.
type OrderPlacedPayload struct {
	OrderID     string            `json:"orderId"`
	UserID      string            `json:"userId"`
	Items       []OrderPlacedItem `json:"items"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Status      string            `json:"status"`
	PlacedAt    time.Time         `json:"placedAt"`
}

type OrderPlacedEnvelope = EventEnvelope[OrderPlacedPayload]

// BuildOrderPlacedEnvelope wraps payload in a v1 envelope partitioned by order id.
func BuildOrderPlacedEnvelope(payload OrderPlacedPayload, seq int64, producer string, meta EnvelopeMetadata) OrderPlacedEnvelope {
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}
	return OrderPlacedEnvelope{
		EventName:     OrderPlacedEventName,
		EventVersion:  OrderPlacedEventVersion,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  payload.OrderID,
		Sequence:      &seq,
		OccurredAt:    payload.PlacedAt,
		Schema:        orderPlacedSchema,
		Payload:       payload,
	}
}
