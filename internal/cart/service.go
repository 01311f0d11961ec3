package cart

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cache"
)

type Store interface {
	LinesForUser(ctx context.Context, userID string) ([]Line, error)
	ClearForUser(ctx context.Context, userID string) (int64, error)
	Add(ctx context.Context, userID, productID string, qty int) (AddResult, error)
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Count(ctx context.Context, userID string) (int, error)
}

// Service fronts the cart store with the badge-count cache. Every mutation
// invalidates the user's cached count.
type Service struct {
	store  Store
	counts cache.CartCountCache
	logger *zap.Logger
	sfg    singleflight.Group

	// epoch advances on every invalidation so a miss-fill that raced one
	// can drop the value it just wrote.
	epoch atomic.Uint64
}

func NewService(store Store, counts cache.CartCountCache, logger *zap.Logger) *Service {
	if counts == nil {
		counts = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, counts: counts, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	lines, err := s.store.LinesForUser(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return Summarize(userID, lines), nil
}

// Count returns the cached unit count, loading it from the store on a miss.
// Concurrent misses for the same user share one store query.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		n, err := s.counts.Get(ctx, userID)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cart count cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		epoch := s.epoch.Load()
		n, err = s.store.Count(ctx, userID)
		if err != nil {
			return 0, err
		}
		if err := s.counts.Set(ctx, userID, n); err != nil {
			s.logger.Warn("cart count cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
		if s.epoch.Load() != epoch {
			if err := s.counts.Delete(ctx, userID); err != nil {
				s.logger.Warn("cart count cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (AddResult, error) {
	res, err := s.store.Add(ctx, userID, productID, qty)
	if err != nil {
		return res, err
	}
	s.Invalidate(userID)
	return res, nil
}

func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if err := s.store.SetQuantity(ctx, userID, productID, qty); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	if err := s.store.Remove(ctx, userID, productID); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.ClearForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.Invalidate(userID)
	return n, nil
}

// Invalidate drops the cached count. Checkout calls it after commit since it
// clears the cart outside this service.
func (s *Service) Invalidate(userID string) {
	s.epoch.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.counts.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart count cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
