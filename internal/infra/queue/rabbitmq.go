package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"learner-retention/internal/domain"
	"learner-retention/internal/infra/metrics"
)

// AMQPNotificationQueue реализует очередь задач через RabbitMQ.
type AMQPNotificationQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewAMQPNotificationQueue подключается к RabbitMQ и объявляет устойчивую очередь.
func NewAMQPNotificationQueue(amqpURL, queue string) (*AMQPNotificationQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPNotificationQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *AMQPNotificationQueue) Enqueue(ctx context.Context, job domain.NotificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *AMQPNotificationQueue) Pop(ctx context.Context) (domain.NotificationJob, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.NotificationJob{}, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}
	for {
		select {
		case <-ctx.Done():
			return domain.NotificationJob{}, ctx.Err()
		case delivery, ok := <-q.deliveries:
			if !ok {
				return domain.NotificationJob{}, errors.New("amqp queue: канал доставки закрыт")
			}
			var job domain.NotificationJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				// Нечитаемое сообщение не возвращаем в очередь.
				_ = delivery.Nack(false, false)
				return domain.NotificationJob{}, fmt.Errorf("decode job: %w", err)
			}
			if err := delivery.Ack(false); err != nil {
				return domain.NotificationJob{}, fmt.Errorf("ack job: %w", err)
			}
			return job, nil
		}
	}
}

// Close освобождает соединение.
func (q *AMQPNotificationQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
