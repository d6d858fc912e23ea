package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"articlepipe/internal/ports"
)

type memoryMessage struct {
	id          string
	body        []byte
	redelivered bool
}

// memoryQueue is an unbounded FIFO; ready holds at most one wake-up for a
// waiting subscriber.
type memoryQueue struct {
	items []memoryMessage
	ready chan struct{}
}

// MemoryTransport is an in-process transport. Messages survive handler
// failures but not process restarts.
type MemoryTransport struct {
	mu              sync.Mutex
	queues          map[string]*memoryQueue
	closed          bool
	redeliveryDelay time.Duration
}

var _ ports.Transport = (*MemoryTransport)(nil)

// NewMemoryTransport creates an empty transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		queues:          make(map[string]*memoryQueue),
		redeliveryDelay: 10 * time.Millisecond,
	}
}

// queueLocked returns the queue of topic, creating it. Callers hold t.mu.
func (t *MemoryTransport) queueLocked(topic string) *memoryQueue {
	q, ok := t.queues[topic]
	if !ok {
		q = &memoryQueue{ready: make(chan struct{}, 1)}
		t.queues[topic] = q
	}
	return q
}

// pushLocked appends msg and wakes a waiting subscriber. Callers hold t.mu.
func (t *MemoryTransport) pushLocked(topic string, msg memoryMessage) {
	q := t.queueLocked(topic)
	q.items = append(q.items, msg)
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop removes the head of topic. When the queue is empty it returns the
// channel to wait on instead.
func (t *MemoryTransport) pop(topic string) (memoryMessage, <-chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queueLocked(topic)
	if len(q.items) == 0 {
		return memoryMessage{}, q.ready, false
	}
	msg := q.items[0]
	q.items[0] = memoryMessage{}
	q.items = q.items[1:]
	return msg, nil, true
}

// requeue puts msg back at the tail. It never blocks and works after Close
// so that an unacknowledged message is not lost.
func (t *MemoryTransport) requeue(topic string, msg memoryMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushLocked(topic, msg)
}

// Publish enqueues body on topic.
func (t *MemoryTransport) Publish(ctx context.Context, topic string, body []byte) (err error) {
	start := time.Now()
	defer func() { observePublish(topic, start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.pushLocked(topic, memoryMessage{id: uuid.NewString(), body: append([]byte(nil), body...)})
	return nil
}

// Subscribe delivers messages of topic sequentially; a failed message is
// put back at the tail of the queue.
func (t *MemoryTransport) Subscribe(ctx context.Context, topic string, h ports.Handler) error {
	if err := t.Ping(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, ready, ok := t.pop(topic)
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-ready:
			}
			continue
		}

		if err := h(ctx, ports.Delivery{
			Topic:       topic,
			Handle:      msg.id,
			Body:        msg.body,
			Redelivered: msg.redelivered,
		}); err != nil {
			msg.redelivered = true
			sleepCtx(ctx, t.redeliveryDelay)
			t.requeue(topic, msg)
		}
	}
}

// Len returns the number of messages waiting on topic.
func (t *MemoryTransport) Len(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if q, ok := t.queues[topic]; ok {
		return len(q.items)
	}
	return 0
}

// Ping fails once the transport is closed.
func (t *MemoryTransport) Ping(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return nil
}

// Close stops accepting publishes.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
