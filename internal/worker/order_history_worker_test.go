package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cinema-checkout/internal/model"
	"cinema-checkout/internal/queue"
	"cinema-checkout/internal/service"
	"cinema-checkout/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 簡單的 Mock 實作
type mockHistoryService struct {
	service.OrderHistoryService // 嵌入介面

	mu       sync.Mutex
	failures int
	recorded []string
}

func (m *mockHistoryService) Record(ctx context.Context, event *model.OrderConfirmedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("db temporarily unavailable")
	}
	m.recorded = append(m.recorded, event.OrderID)
	return nil
}

func (m *mockHistoryService) orders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.recorded...)
}

func TestOrderHistoryWorker_RecordsEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := queue.NewMemoryOrderEventQueue(10)
	svc := &mockHistoryService{}
	w := worker.NewOrderHistoryWorker(svc, q)
	require.NoError(t, w.Start(ctx))

	require.NoError(t, q.PublishOrderConfirmed(ctx, &model.OrderConfirmedEvent{OrderID: "ord-1"}))
	require.NoError(t, q.PublishOrderConfirmed(ctx, &model.OrderConfirmedEvent{OrderID: "ord-2"}))

	assert.Eventually(t, func() bool {
		return len(svc.orders()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"ord-1", "ord-2"}, svc.orders())

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestOrderHistoryWorker_RetriesOnFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := queue.NewMemoryOrderEventQueue(10)
	svc := &mockHistoryService{failures: 2}
	w := worker.NewOrderHistoryWorker(svc, q)
	require.NoError(t, w.Start(ctx))

	require.NoError(t, q.PublishOrderConfirmed(ctx, &model.OrderConfirmedEvent{OrderID: "ord-3"}))

	assert.Eventually(t, func() bool {
		return len(svc.orders()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ord-3"}, svc.orders())
}
