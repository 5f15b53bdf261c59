package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cinema-checkout/internal/model"
	"cinema-checkout/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const OrderConfirmedQueueName = "order.confirmed"

// AMQPOrderEventQueueImpl publishes to a durable RabbitMQ queue over one shared connection.
type AMQPOrderEventQueueImpl struct {
	conn      *amqp.Connection
	queueName string
	prefetch  int

	mu     sync.Mutex
	pubCh  *amqp.Channel
	closed bool
	log    *zap.Logger
}

func NewAMQPOrderEventQueue(url string, prefetch int) (*AMQPOrderEventQueueImpl, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 50
	}
	q := &AMQPOrderEventQueueImpl{
		conn:      conn,
		queueName: OrderConfirmedQueueName,
		prefetch:  prefetch,
		log:       logger.WithComponent("mq"),
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := q.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	q.pubCh = ch
	return q, nil
}

func (q *AMQPOrderEventQueueImpl) declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		q.queueName, // name
		true,        // durable
		false,       // autoDelete
		false,       // exclusive
		false,       // noWait
		nil,         // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}

func (q *AMQPOrderEventQueueImpl) PublishOrderConfirmed(ctx context.Context, event *model.OrderConfirmedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return amqp.ErrClosed
	}
	if q.pubCh == nil || q.pubCh.IsClosed() {
		ch, err := q.conn.Channel()
		if err != nil {
			return fmt.Errorf("channel open: %w", err)
		}
		q.pubCh = ch
	}

	return q.pubCh.PublishWithContext(ctx,
		"",          // default exchange
		q.queueName, // routing key = queue name
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.OrderID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (q *AMQPOrderEventQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		q.log.Warn("set QoS failed", zap.Error(err))
	}
	if err := q.declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue consume: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					q.log.Warn("deliveries channel closed")
					return
				}
				var event model.OrderConfirmedEvent
				if err := json.Unmarshal(m.Body, &event); err != nil {
					q.log.Warn("unmarshal event failed", zap.Error(err))
					_ = m.Nack(false, false) // 不重回隊列，避免無限循環
					continue
				}
				msg := m
				d := Delivery{
					Data: &event,
					Ack: func() {
						if err := msg.Ack(false); err != nil {
							q.log.Error("ack failed", zap.Error(err))
						}
					},
					Nack: func(requeue bool) {
						if err := msg.Nack(false, requeue); err != nil {
							q.log.Error("nack failed", zap.Error(err))
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

func (q *AMQPOrderEventQueueImpl) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	return q.conn.Close()
}
