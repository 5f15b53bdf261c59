package queue_test

import (
	"context"
	"testing"
	"time"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/queue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(orderID string) *model.OrderConfirmedEvent {
	return &model.OrderConfirmedEvent{
		OrderID:        orderID,
		PurchaseNumber: "PN-" + orderID,
		UserID:         "user-1",
		ShowtimeIDs:    []string{"show-1"},
		SeatCodes:      []string{"A1", "A2"},
		GrandTotal:     decimal.RequireFromString("177.00"),
		ConfirmedAt:    time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
	}
}

func receive(t *testing.T, ctx context.Context, ch <-chan queue.Delivery) queue.Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "channel closed")
		require.NotNil(t, d.Data)
		return d
	case <-ctx.Done():
		t.Fatal("timeout waiting for delivery")
	}
	return queue.Delivery{}
}

func TestMemoryOrderEventQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := queue.NewMemoryOrderEventQueue(4)
	require.NoError(t, q.PublishOrderConfirmed(ctx, newEvent("ord-1")))

	ch, err := q.Subscribe(ctx)
	require.NoError(t, err)

	d := receive(t, ctx, ch)
	assert.Equal(t, "ord-1", d.Data.OrderID)

	// nack with requeue delivers the same event again
	d.Nack(true)
	again := receive(t, ctx, ch)
	assert.Equal(t, "ord-1", again.Data.OrderID)
	again.Ack()

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestMemoryOrderEventQueue_PublishRespectsContext(t *testing.T) {
	q := queue.NewMemoryOrderEventQueue(1)
	require.NoError(t, q.PublishOrderConfirmed(context.Background(), newEvent("ord-1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.PublishOrderConfirmed(ctx, newEvent("ord-2"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
