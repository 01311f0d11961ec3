package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/events"
)

type BatchStore interface {
	ProcessBatch(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error)
}

type PublishObserver interface {
	ObservePublish(result string)
}

type RelayConfig struct {
	Interval  time.Duration
	BatchSize int

	// Wake, when set, triggers a pass before the interval elapses.
	Wake <-chan struct{}

	Logger  *zap.Logger
	Metrics PublishObserver

	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration

	// TripAfter consecutive publish failures open the breaker.
	TripAfter uint32
}

// Relay moves committed outbox rows to the broker.
type Relay struct {
	store   BatchStore
	pub     events.Publisher
	cb      *gobreaker.CircuitBreaker[struct{}]
	cfg     RelayConfig
	logger  *zap.Logger
	metrics PublishObserver
}

func NewRelay(store BatchStore, pub events.Publisher, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "outbox-relay"))

	r := &Relay{store: store, pub: pub, cfg: cfg, logger: logger, metrics: cfg.Metrics}
	r.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.TripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.cfg.Interval), zap.Int("batch_size", r.cfg.BatchSize))
	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		case <-r.cfg.Wake:
		}
	}
}

// drain keeps relaying while batches come back full.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		sent, err := r.RelayOnce(ctx)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				r.logger.Debug("outbox relay paused, breaker open")
			} else if !errors.Is(err, context.Canceled) {
				r.logger.Error("outbox relay pass failed", zap.Int("sent", sent), zap.Error(err))
			}
			return
		}
		if sent < r.cfg.BatchSize {
			return
		}
	}
}

// RelayOnce publishes a single batch and returns how many rows were marked sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return r.store.ProcessBatch(ctx, r.cfg.BatchSize, r.publish)
}

func (r *Relay) publish(ctx context.Context, rec Record) error {
	_, err := r.cb.Execute(func() (struct{}, error) {
		return struct{}{}, r.pub.Publish(ctx, rec.Message())
	})
	switch {
	case err == nil:
		r.observe("sent")
		r.logger.Debug("outbox event published", zap.String("event_id", rec.EventID), zap.String("routing_key", rec.RoutingKey))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.observe("breaker_open")
	default:
		r.observe("failed")
		r.logger.Warn("outbox publish failed", zap.String("event_id", rec.EventID), zap.Error(err))
	}
	return err
}

func (r *Relay) observe(result string) {
	if r.metrics != nil {
		r.metrics.ObservePublish(result)
	}
}
