package cache_test

import (
	"context"
	"testing"
	"time"

	"cinema-checkout/internal/cache"
	"cinema-checkout/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() model.CartSnapshot {
	total := decimal.RequireFromString("40.00")
	return model.CartSnapshot{
		TicketGroups: []model.TicketGroup{
			{ShowtimeID: "show-1", SeatCodes: []string{"A1", "A2"}, UnitPrice: decimal.RequireFromString("25"), TotalPrice: &total},
		},
		Concessions: []model.ConcessionLine{
			{ProductID: "popcorn", Name: "Popcorn", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
		},
		Promotion: &model.Promotion{
			Code:         "SAVE20",
			DiscountType: model.DiscountTypeFixedAmount,
			Value:        decimal.RequireFromString("20"),
		},
	}
}

func TestStateStore_Session(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			state := cache.NewStateStore(store, "client-1")

			_, _, ok := state.LoadSession(ctx)
			assert.False(t, ok)

			expiresAt := time.Date(2026, 3, 1, 20, 15, 0, 0, time.UTC)
			require.NoError(t, state.SaveSession(ctx, "sess-1", expiresAt))

			id, got, ok := state.LoadSession(ctx)
			require.True(t, ok)
			assert.Equal(t, "sess-1", id)
			assert.True(t, expiresAt.Equal(got))

			require.NoError(t, state.ClearSession(ctx))
			_, _, ok = state.LoadSession(ctx)
			assert.False(t, ok)
		})
	}
}

func TestStateStore_SessionCorrupted(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	state := cache.NewStateStore(store, "client-1")

	require.NoError(t, store.Set(ctx, "state:client-1:reservation:session_id", []byte("sess-1"), 0))
	require.NoError(t, store.Set(ctx, "state:client-1:reservation:expires_at", []byte("not-a-time"), 0))

	_, _, ok := state.LoadSession(ctx)

	assert.False(t, ok)
	_, err := store.Get(ctx, "state:client-1:reservation:session_id")
	assert.Error(t, err)
}

func TestStateStore_Cart(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			state := cache.NewStateStore(store, "client-1")

			_, ok := state.LoadCart(ctx)
			assert.False(t, ok)

			snap := sampleSnapshot()
			require.NoError(t, state.SaveCart(ctx, snap))

			got, ok := state.LoadCart(ctx)
			require.True(t, ok)
			require.Len(t, got.TicketGroups, 1)
			assert.Equal(t, []string{"A1", "A2"}, got.TicketGroups[0].SeatCodes)
			require.NotNil(t, got.TicketGroups[0].TotalPrice)
			assert.True(t, got.TicketGroups[0].TotalPrice.Equal(decimal.RequireFromString("40")))
			require.Len(t, got.Concessions, 1)
			assert.Equal(t, 2, got.Concessions[0].Quantity)
			require.NotNil(t, got.Promotion)
			assert.Equal(t, "SAVE20", got.Promotion.Code)

			// removing the promotion deletes its key
			snap.Promotion = nil
			require.NoError(t, state.SaveCart(ctx, snap))
			got, _ = state.LoadCart(ctx)
			assert.Nil(t, got.Promotion)

			require.NoError(t, state.Clear(ctx))
			_, ok = state.LoadCart(ctx)
			assert.False(t, ok)
		})
	}
}

func TestStateStore_CartCorruptedEntryDiscarded(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	state := cache.NewStateStore(store, "client-1")
	require.NoError(t, state.SaveCart(ctx, sampleSnapshot()))

	require.NoError(t, store.Set(ctx, "state:client-1:cart:tickets", []byte("{broken"), 0))

	got, ok := state.LoadCart(ctx)

	require.True(t, ok)
	assert.Empty(t, got.TicketGroups)
	assert.Len(t, got.Concessions, 1)
	_, err := store.Get(ctx, "state:client-1:cart:tickets")
	assert.Error(t, err)
}

func TestStateStore_Namespaces(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	a := cache.NewStateStore(store, "a")
	b := cache.NewStateStore(store, "b")

	require.NoError(t, a.SaveSession(ctx, "sess-a", time.Now().Add(time.Minute)))

	_, _, ok := b.LoadSession(ctx)
	assert.False(t, ok)
}
