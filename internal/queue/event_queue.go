package queue

import (
	"context"

	"cinema-checkout/internal/model"
)

type Delivery struct {
	Data *model.OrderConfirmedEvent
	Ack  func()
	Nack func(requeue bool)
}

type OrderEventQueue interface {
	// 發送訂單確認事件到隊列
	PublishOrderConfirmed(ctx context.Context, event *model.OrderConfirmedEvent) error
	// 訂閱事件隊列；ctx 結束時關閉 channel
	Subscribe(ctx context.Context) (<-chan Delivery, error)
}

type MemoryOrderEventQueueImpl struct {
	// 使用 Go channel 來模擬 MQ 隊列
	ch chan *model.OrderConfirmedEvent
}

func NewMemoryOrderEventQueue(bufferSize int) OrderEventQueue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &MemoryOrderEventQueueImpl{
		ch: make(chan *model.OrderConfirmedEvent, bufferSize),
	}
}

func (q *MemoryOrderEventQueueImpl) PublishOrderConfirmed(ctx context.Context, event *model.OrderConfirmedEvent) error {
	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryOrderEventQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-q.ch:
				if !ok {
					return
				}

				d := Delivery{
					Data: event,
					Ack:  func() {},
					Nack: func(requeue bool) {
						if requeue {
							// 簡單模擬重回隊列
							go func() {
								select {
								case q.ch <- event:
								case <-ctx.Done():
								}
							}()
						}
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
