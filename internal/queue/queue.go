package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TopicEmailEvents carries provider webhook events from the API to the worker.
const TopicEmailEvents = "email_events"

// Handler processes one message body. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers in-process, with optional retry and linear backoff.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	maxRetries int
	backoff    time.Duration
	inflight   sync.WaitGroup
	log        *slog.Logger
}

// NewInMemoryQueue creates a new queue. maxRetries of 0 means one attempt per message.
func NewInMemoryQueue(maxRetries int, logger *slog.Logger) *InMemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		log:        logger.With("module", "queue"),
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish hands the message to every subscriber of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.inflight.Add(1)
		go func(h Handler) {
			defer q.inflight.Done()
			q.processJob(context.WithoutCancel(ctx), h, job{topic: topic, body: body})
		}(handler)
	}
	return nil
}

func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, j job) {
	for {
		err := handler(ctx, j.body)
		if err == nil {
			return
		}

		j.retryCount++
		if j.retryCount > q.maxRetries {
			q.log.Error("job dropped", "event", "queue.job_failed", "topic", j.topic, "attempts", j.retryCount, "error", err)
			return
		}
		q.log.Warn("job failed, retrying", "event", "queue.job_retry", "topic", j.topic, "attempt", j.retryCount, "error", err)
		time.Sleep(time.Duration(j.retryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published message has been handled.
func (q *InMemoryQueue) Wait() {
	q.inflight.Wait()
}

func (q *InMemoryQueue) Close() error {
	q.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
