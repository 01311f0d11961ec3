package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Listen subscribes to NotifyChannel and returns a channel that receives a
// signal per notification (coalesced), plus a close function.
func Listen(ctx context.Context, dsn string, logger *zap.Logger) (<-chan struct{}, func() error, error) {
	l := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("outbox listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	wake := make(chan struct{}, 1)
	go func() {
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-l.Notify:
				if !ok {
					return
				}
				// nil notifications follow a reconnect; a pass is wanted either way
				select {
				case wake <- struct{}{}:
				default:
				}
			case <-ping.C:
				if err := l.Ping(); err != nil {
					logger.Warn("outbox listener ping failed", zap.Error(err))
				}
			}
		}
	}()
	return wake, l.Close, nil
}
