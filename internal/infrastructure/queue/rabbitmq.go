package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

// RabbitMQTransport is the queue transport: durable queues, persistent
// messages, publisher confirms and manual acknowledgement.
type RabbitMQTransport struct {
	url            string
	prefetch       int
	publishTimeout time.Duration
	abandonDelay   time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	declared map[string]bool
	closed   bool
}

var _ ports.Transport = (*RabbitMQTransport)(nil)

// NewRabbitMQTransport creates a transport; the connection is dialled on
// first use.
func NewRabbitMQTransport(cfg config.TransportConfig, logger *slog.Logger) *RabbitMQTransport {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	return &RabbitMQTransport{
		url:            cfg.URL,
		prefetch:       prefetch,
		publishTimeout: cfg.PublishTimeout,
		abandonDelay:   abandonDelay,
		logger:         logger.With("component", "rabbitmq"),
		declared:       make(map[string]bool),
	}
}

// connectionLocked returns a live connection, redialling if needed.
// Callers hold t.mu.
func (t *RabbitMQTransport) connectionLocked() (*amqp.Connection, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn, nil
	}

	conn, err := amqp.Dial(t.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	t.conn = conn
	t.pubCh = nil
	t.declared = make(map[string]bool)
	t.logger.Info("connected to rabbitmq")
	return conn, nil
}

func (t *RabbitMQTransport) publishChannelLocked() (*amqp.Channel, error) {
	conn, err := t.connectionLocked()
	if err != nil {
		return nil, err
	}
	if t.pubCh != nil && !t.pubCh.IsClosed() {
		return t.pubCh, nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	t.pubCh = ch
	t.declared = make(map[string]bool)
	return ch, nil
}

func declareQueue(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(topic, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return nil
}

// Publish sends body to the durable queue named topic and waits for the
// broker confirm.
func (t *RabbitMQTransport) Publish(ctx context.Context, topic string, body []byte) (err error) {
	start := time.Now()
	defer func() { observePublish(topic, start, err) }()

	if t.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.publishTimeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.publishChannelLocked()
	if err != nil {
		return err
	}
	if !t.declared[topic] {
		if err := declareQueue(ch, topic); err != nil {
			t.resetPublishChannelLocked()
			return err
		}
		t.declared[topic] = true
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		t.resetPublishChannelLocked()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		t.resetPublishChannelLocked()
		return fmt.Errorf("wait confirm for %s: %w", topic, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected message for %s", topic)
	}
	return nil
}

func (t *RabbitMQTransport) resetPublishChannelLocked() {
	if t.pubCh != nil {
		_ = t.pubCh.Close()
		t.pubCh = nil
	}
}

// Subscribe consumes topic on a dedicated channel with manual ack until ctx
// is cancelled or the channel is closed by the broker.
func (t *RabbitMQTransport) Subscribe(ctx context.Context, topic string, h ports.Handler) error {
	t.mu.Lock()
	conn, err := t.connectionLocked()
	t.mu.Unlock()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(t.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := declareQueue(ch, topic); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, topic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	t.logger.Info("subscribed", "topic", topic, "prefetch", t.prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ctx.Err() != nil {
				return nil
			}
			if ok && amqpErr != nil {
				return fmt.Errorf("consumer channel closed: %w", amqpErr)
			}
			return errors.New("consumer channel closed")
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery stream closed")
			}
			if err := t.dispatch(ctx, topic, d, h); err != nil {
				return err
			}
		}
	}
}

// dispatch runs the handler and settles d: ack on success, otherwise nack
// with requeue after abandonDelay.
func (t *RabbitMQTransport) dispatch(ctx context.Context, topic string, d amqp.Delivery, h ports.Handler) error {
	handle := strconv.FormatUint(d.DeliveryTag, 10)
	herr := h(ctx, ports.Delivery{
		Topic:       topic,
		Handle:      handle,
		Body:        d.Body,
		Redelivered: d.Redelivered,
	})
	if herr == nil {
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("ack delivery %s: %w", handle, err)
		}
		return nil
	}

	t.logger.Warn("message abandoned for redelivery", "message_handle", handle, "error", herr)
	sleepCtx(ctx, t.abandonDelay)
	if err := d.Nack(false, true); err != nil {
		return fmt.Errorf("nack delivery %s: %w", handle, err)
	}
	return nil
}

// Ping reports whether the connection is usable, dialling if necessary.
func (t *RabbitMQTransport) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.connectionLocked()
	return err
}

// Close releases the publishing channel and the connection.
func (t *RabbitMQTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.resetPublishChannelLocked()
	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn.Close()
	}
	return nil
}
