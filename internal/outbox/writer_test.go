package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
)

// envelopeArg matches a marshalled OrderPlaced envelope body.
type envelopeArg struct {
	t       *testing.T
	orderID string
	seq     int64
}

func (a envelopeArg) Match(v any) bool {
	body, ok := v.([]byte)
	if !ok {
		return false
	}
	var env events.OrderPlacedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		a.t.Logf("body is not an envelope: %v", err)
		return false
	}
	return env.EventName == events.OrderPlacedEventName &&
		env.PartitionKey == a.orderID &&
		env.Sequence != nil && *env.Sequence == a.seq &&
		env.Payload.TotalAmount.Equal(decimal.RequireFromString("23.50"))
}

func samplePayload() events.OrderPlacedPayload {
	return events.OrderPlacedPayload{
		OrderID:     "o1",
		UserID:      "u1",
		Items:       []events.OrderPlacedItem{{ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")}},
		TotalAmount: decimal.RequireFromString("23.50"),
		Status:      "pending",
		PlacedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriterOrderPlaced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO event_sequence`)).
		WithArgs("o1").
		WillReturnRows(mock.NewRows([]string{"last_sequence"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO outbox (event_id, event_name, routing_key, partition_key, body)`)).
		WithArgs(pgxmock.AnyArg(), events.OrderPlacedEventName, events.OrderPlacedRoutingKey, "o1", envelopeArg{t: t, orderID: "o1", seq: 1}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, '')`)).
		WithArgs(NotifyChannel).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	w := NewWriter(mock, "storefront-go").WithTx(tx)
	eventID, err := w.OrderPlaced(ctx, samplePayload(), events.EnvelopeMetadata{CorrelationID: "req-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, eventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriterOrderPlaced_InsertFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO event_sequence`)).
		WithArgs("o1").
		WillReturnRows(mock.NewRows([]string{"last_sequence"}).AddRow(int64(4)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO outbox`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("relation \"outbox\" does not exist"))

	_, err = NewWriter(mock, "storefront-go").OrderPlaced(context.Background(), samplePayload(), events.EnvelopeMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert outbox")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriterOrderPlaced_SequenceFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO event_sequence`)).
		WithArgs("o1").
		WillReturnError(errors.New("deadlock detected"))

	_, err = NewWriter(mock, "storefront-go").OrderPlaced(context.Background(), samplePayload(), events.EnvelopeMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve sequence")
}
