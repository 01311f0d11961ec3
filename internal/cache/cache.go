package cache

import (
	"context"
	"errors"
)

// CartCountCache holds the per-user cart badge count.
type CartCountCache interface {
	Get(ctx context.Context, userID string) (int, error)
	Set(ctx context.Context, userID string, count int) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop is used when no redis address is configured; every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string) (int, error) { return 0, ErrCacheMiss }
func (Nop) Set(context.Context, string, int) error { return nil }
func (Nop) Delete(context.Context, string) error { return nil }
