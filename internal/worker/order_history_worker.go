package worker

import (
	"context"

	"cinema-checkout/internal/queue"
	"cinema-checkout/internal/service"
	"cinema-checkout/pkg/logger"

	"go.uber.org/zap"
)

type OrderHistoryWorker interface {
	// 訂閱訂單確認事件，寫入 order history；ctx 結束時停止
	Start(ctx context.Context) error
	// Done 在消費 goroutine 結束後關閉
	Done() <-chan struct{}
}

type OrderHistoryWorkerImpl struct {
	service service.OrderHistoryService
	queue   queue.OrderEventQueue
	done    chan struct{}
	log     *zap.Logger
}

func NewOrderHistoryWorker(service service.OrderHistoryService, queue queue.OrderEventQueue) OrderHistoryWorker {
	return &OrderHistoryWorkerImpl{
		service: service,
		queue:   queue,
		done:    make(chan struct{}),
		log:     logger.WithComponent("worker"),
	}
}

func (w *OrderHistoryWorkerImpl) Start(ctx context.Context) error {
	msgs, err := w.queue.Subscribe(ctx)
	if err != nil {
		close(w.done)
		return err
	}

	go func() {
		defer close(w.done)
		for msg := range msgs {
			if err := w.service.Record(ctx, msg.Data); err != nil {
				// 資料庫暫時連不上就重試
				w.log.Warn("Record order history failed, requeue",
					zap.String("order_id", msg.Data.OrderID),
					zap.Error(err),
				)
				msg.Nack(true)
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

func (w *OrderHistoryWorkerImpl) Done() <-chan struct{} {
	return w.done
}
