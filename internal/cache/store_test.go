package cache_test

import (
	"context"
	"testing"
	"time"

	"cinema-checkout/internal/cache"
	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, apperrors.ErrCacheMiss)

			require.NoError(t, store.Set(ctx, "k", []byte("v1"), 0))
			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), got)

			require.NoError(t, store.Set(ctx, "k", []byte("v2"), 0))
			got, _ = store.Get(ctx, "k")
			assert.Equal(t, []byte("v2"), got)

			require.NoError(t, store.Delete(ctx, "k", "never-set"))
			_, err = store.Get(ctx, "k")
			assert.ErrorIs(t, err, apperrors.ErrCacheMiss)

			require.NoError(t, store.Delete(ctx))
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// absent -> value
			ok, err := store.CompareAndSwap(ctx, "order", nil, []byte("speculative"), 0)
			require.NoError(t, err)
			assert.True(t, ok)

			// expected absent but present
			ok, err = store.CompareAndSwap(ctx, "order", nil, []byte("other"), 0)
			require.NoError(t, err)
			assert.False(t, ok)

			// wrong expectation leaves the value alone
			ok, err = store.CompareAndSwap(ctx, "order", []byte("stale"), []byte("final"), 0)
			require.NoError(t, err)
			assert.False(t, ok)
			got, _ := store.Get(ctx, "order")
			assert.Equal(t, []byte("speculative"), got)

			ok, err = store.CompareAndSwap(ctx, "order", []byte("speculative"), []byte("final"), 0)
			require.NoError(t, err)
			assert.True(t, ok)
			got, _ = store.Get(ctx, "order")
			assert.Equal(t, []byte("final"), got)

			// nil value deletes
			ok, err = store.CompareAndSwap(ctx, "order", []byte("final"), nil, 0)
			require.NoError(t, err)
			assert.True(t, ok)
			_, err = store.Get(ctx, "order")
			assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
		})
	}
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	clearRedis(t)
	store := cache.NewRedisStore(testRdb, "ttl")

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Minute))
	ok, err := store.CompareAndSwap(ctx, "cas", nil, []byte("y"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, testServer.Exists("ttl:short"))
	testServer.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, "short")
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
	_, err = store.Get(ctx, "cas")
	assert.ErrorIs(t, err, apperrors.ErrCacheMiss)
}
