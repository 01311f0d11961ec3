package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
)

// memStore mimics SQLStore: rows are handed out in order and a failing fn
// stops the batch.
type memStore struct {
	mu     sync.Mutex
	rows   []Record
	passes int
	passed chan struct{}
}

func (m *memStore) ProcessBatch(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
	if m.passed != nil {
		select {
		case m.passed <- struct{}{}:
		default:
		}
	}

	sent := 0
	for len(m.rows) > 0 && sent < limit {
		if err := fn(ctx, m.rows[0]); err != nil {
			return sent, err
		}
		m.rows = m.rows[1:]
		sent++
	}
	return sent, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []events.Message
	fail  int
	calls int
}

func (f *fakePublisher) Publish(_ context.Context, msg events.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return errors.New("broker unreachable")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingObserver) ObservePublish(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[result]++
}

func records(ids ...string) []Record {
	out := make([]Record, 0, len(ids))
	for i, id := range ids {
		out = append(out, Record{ID: int64(i + 1), EventID: id, EventName: events.OrderPlacedEventName, RoutingKey: events.OrderPlacedRoutingKey, PartitionKey: "o-" + id})
	}
	return out
}

func TestRelayOnce_PublishesInOrder(t *testing.T) {
	store := &memStore{rows: records("e1", "e2")}
	pub := &fakePublisher{}
	obs := &countingObserver{}

	sent, err := NewRelay(store, pub, RelayConfig{BatchSize: 10, Metrics: obs}).RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "e1", pub.msgs[0].EventID)
	assert.Equal(t, "o-e1", pub.msgs[0].Key)
	assert.Equal(t, 2, obs.counts["sent"])
}

func TestRelayOnce_FailureLeavesRowPending(t *testing.T) {
	store := &memStore{rows: records("e1", "e2")}
	pub := &fakePublisher{fail: 1}
	obs := &countingObserver{}
	r := NewRelay(store, pub, RelayConfig{BatchSize: 10, Metrics: obs})

	sent, err := r.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, sent)
	assert.Len(t, store.rows, 2)
	assert.Equal(t, 1, obs.counts["failed"])

	sent, err = r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestRelay_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &memStore{rows: records("e1")}
	pub := &fakePublisher{fail: 100}
	obs := &countingObserver{}
	r := NewRelay(store, pub, RelayConfig{BatchSize: 10, Metrics: obs, TripAfter: 2, BreakerTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := r.RelayOnce(context.Background())
		require.Error(t, err)
	}

	_, err := r.RelayOnce(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, pub.calls, "open breaker must not reach the broker")
	assert.Equal(t, 1, obs.counts["breaker_open"])
	assert.Len(t, store.rows, 1)
}

func TestRelay_LogsBreakerTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRelay(&memStore{rows: records("e1")}, &fakePublisher{fail: 1}, RelayConfig{
		Logger:    zap.New(core),
		TripAfter: 1,
	})

	_, err := r.RelayOnce(context.Background())
	require.Error(t, err)

	transitions := logs.FilterMessage("circuit breaker state change").All()
	require.Len(t, transitions, 1)
	assert.Equal(t, "open", transitions[0].ContextMap()["to"])
}

func TestRelayRun_WakesOnNotifyAndStops(t *testing.T) {
	store := &memStore{passed: make(chan struct{}, 1)}
	wake := make(chan struct{}, 1)
	r := NewRelay(store, &fakePublisher{}, RelayConfig{Interval: time.Hour, Wake: wake})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	waitPass := func() {
		select {
		case <-store.passed:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not run a pass")
		}
	}
	waitPass()

	store.mu.Lock()
	store.rows = records("e9")
	store.mu.Unlock()
	wake <- struct{}{}
	waitPass()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.rows)
}
