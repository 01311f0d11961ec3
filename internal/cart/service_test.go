package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cache"
)

type fakeStore struct {
	mu     sync.Mutex
	count  int
	counts int
	err    error

	// onCount runs after Count has read its value.
	onCount func()
}

func (f *fakeStore) LinesForUser(context.Context, string) ([]Line, error) { return nil, f.err }

func (f *fakeStore) ClearForUser(context.Context, string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := int64(f.count)
	f.count = 0
	return n, nil
}

func (f *fakeStore) Add(_ context.Context, _, _ string, qty int) (AddResult, error) {
	if f.err != nil {
		return AddResult{}, f.err
	}
	f.count += qty
	return AddResult{Added: qty, InCart: f.count}, nil
}

func (f *fakeStore) SetQuantity(_ context.Context, _, _ string, qty int) error {
	f.count = qty
	return f.err
}

func (f *fakeStore) Remove(context.Context, string, string) error { return f.err }

func (f *fakeStore) Count(context.Context, string) (int, error) {
	f.mu.Lock()
	f.counts++
	n, err := f.count, f.err
	hook := f.onCount
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return n, err
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (int, error) { return 0, errors.New("redis down") }
func (failingCache) Set(context.Context, string, int) error { return errors.New("redis down") }
func (failingCache) Delete(context.Context, string) error { return errors.New("redis down") }

func newRedisService(t *testing.T, store Store) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(store, cache.NewRedisCache(client, time.Minute), zap.NewNop()), mr
}

func TestServiceCount_CachesAfterMiss(t *testing.T) {
	store := &fakeStore{count: 3}
	svc, _ := newRedisService(t, store)
	ctx := context.Background()

	n, err := svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, store.counts, "second read should be served from cache")
}

func TestServiceMutationsInvalidate(t *testing.T) {
	store := &fakeStore{count: 1}
	svc, _ := newRedisService(t, store)
	ctx := context.Background()

	_, err := svc.Count(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.Add(ctx, "u1", "A", 2)
	require.NoError(t, err)

	n, err := svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, store.counts)

	removed, err := svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	n, err = svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestServiceCount_InvalidationDuringMissFillIsNotLost(t *testing.T) {
	store := &fakeStore{count: 2}
	svc, mr := newRedisService(t, store)
	ctx := context.Background()

	// A checkout commits after the store read but before the cache write.
	store.onCount = func() {
		store.onCount = nil
		store.count = 0
		svc.Invalidate("u1")
	}

	n, err := svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("cart:count:u1"), "stale count must not stay cached")

	n, err = svc.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, store.counts)
}

func TestServiceCount_CacheFailureFallsThrough(t *testing.T) {
	store := &fakeStore{count: 5}
	svc := NewService(store, failingCache{}, zap.NewNop())

	n, err := svc.Count(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, svc.Remove(context.Background(), "u1", "A"))
}

func TestServiceCount_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	svc := NewService(store, nil, nil)

	_, err := svc.Count(context.Background(), "u1")
	require.Error(t, err)
}

func TestServiceGet_Summarizes(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, nil)
	c, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.Empty(t, c.Lines)
}
