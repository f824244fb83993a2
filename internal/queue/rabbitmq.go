package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const (
	ExchangeName = "ex.marketing"
	DLXName      = "ex.marketing.dlx"
)

func queueName(topic string) string { return "q." + topic }
func dlqName(topic string) string   { return "q." + topic + ".dlq" }

// RabbitMQ publishes to a direct exchange keyed by topic. Failed deliveries are
// dead-lettered, never requeued.
type RabbitMQ struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
	log  *slog.Logger

	declared map[string]bool
}

func NewRabbitMQ(url string, logger *slog.Logger) (*RabbitMQ, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &RabbitMQ{conn: conn, ch: ch, log: logger.With("module", "queue"), declared: map[string]bool{}}, nil
}

// declare sets up the topic queue and its dead-letter queue once per process.
func (r *RabbitMQ) declare(topic string) error {
	if r.declared[topic] {
		return nil
	}
	if _, err := r.ch.QueueDeclare(dlqName(topic), true, false, false, false, nil); err != nil {
		return err
	}
	if err := r.ch.QueueBind(dlqName(topic), topic, DLXName, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": topic,
	}
	if _, err := r.ch.QueueDeclare(queueName(topic), true, false, false, false, args); err != nil {
		return err
	}
	if err := r.ch.QueueBind(queueName(topic), topic, ExchangeName, false, nil); err != nil {
		return err
	}
	r.declared[topic] = true
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.declare(topic); err != nil {
		return fmt.Errorf("declare %s: %w", topic, err)
	}
	return r.ch.Publish(ExchangeName, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
}

// Subscribe starts a consumer goroutine. It returns once the consumer is registered.
func (r *RabbitMQ) Subscribe(topic string, handler Handler) error {
	r.mu.Lock()
	if err := r.declare(topic); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("declare %s: %w", topic, err)
	}
	if err := r.ch.Qos(10, 0, false); err != nil {
		r.mu.Unlock()
		return err
	}
	deliveries, err := r.ch.Consume(queueName(topic), "", false, false, false, false, nil)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	go func() {
		for d := range deliveries {
			if err := handler(context.Background(), d.Body); err != nil {
				r.log.Error("message dead-lettered", "event", "queue.job_failed", "topic", topic, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
		r.log.Info("consumer stopped", "event", "queue.consumer_stopped", "topic", topic)
	}()
	return nil
}

func (r *RabbitMQ) Close() error {
	if err := r.ch.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}

var _ Queue = (*RabbitMQ)(nil)
