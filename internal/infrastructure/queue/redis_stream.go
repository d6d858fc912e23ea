package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

// Stream entry fields.
const (
	fieldMessageID = "message_id"
	fieldPayload   = "payload"
)

// pendingBatch bounds one read of this consumer's pending entries.
const pendingBatch = 10

// RedisStreamTransport is the log transport: an append-only Redis Stream per
// topic consumed through a consumer group. XACK marks the committed position.
type RedisStreamTransport struct {
	client         *redis.Client
	group          string
	consumer       string
	blockTimeout   time.Duration
	claimIdle      time.Duration
	maxLen         int64
	publishTimeout time.Duration
	logger         *slog.Logger
}

var _ ports.Transport = (*RedisStreamTransport)(nil)

// NewRedisStreamTransport parses cfg.URL and builds a client.
func NewRedisStreamTransport(cfg config.TransportConfig, logger *slog.Logger) (*RedisStreamTransport, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStreamTransportWithClient(redis.NewClient(opts), cfg, logger), nil
}

// NewRedisStreamTransportWithClient wraps an existing client.
func NewRedisStreamTransportWithClient(client *redis.Client, cfg config.TransportConfig, logger *slog.Logger) *RedisStreamTransport {
	if logger == nil {
		logger = slog.Default()
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		if host, _ := os.Hostname(); host != "" {
			consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
		} else {
			consumer = "consumer-" + uuid.NewString()[:8]
		}
	}
	block := cfg.BlockTimeout
	if block <= 0 {
		block = 2 * time.Second
	}
	return &RedisStreamTransport{
		client:         client,
		group:          cfg.Group,
		consumer:       consumer,
		blockTimeout:   block,
		claimIdle:      cfg.ClaimIdle,
		maxLen:         cfg.MaxLen,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger.With("component", "redis-stream"),
	}
}

// Publish appends body to the stream named topic.
func (t *RedisStreamTransport) Publish(ctx context.Context, topic string, body []byte) (err error) {
	start := time.Now()
	defer func() { observePublish(topic, start, err) }()

	if t.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.publishTimeout)
		defer cancel()
	}

	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			fieldMessageID: uuid.NewString(),
			fieldPayload:   string(body),
		},
	}
	if t.maxLen > 0 {
		args.MaxLen = t.maxLen
		args.Approx = true
	}

	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

// Subscribe runs the consumer-group loop for topic. It replays this
// consumer's pending entries first, periodically claims entries abandoned by
// other consumers, then reads new entries one at a time.
func (t *RedisStreamTransport) Subscribe(ctx context.Context, topic string, h ports.Handler) error {
	if err := t.ensureGroup(ctx, topic); err != nil {
		return err
	}

	t.logger.Info("subscribed",
		"topic", topic,
		"group", t.group,
		"consumer", t.consumer,
	)

	replay := true
	lastClaim := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if replay {
			done, err := t.replayPending(ctx, topic, h)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !done {
				sleepCtx(ctx, abandonDelay)
				continue
			}
			replay = false
		}

		if t.claimIdle > 0 && time.Since(lastClaim) >= t.claimIdle {
			lastClaim = time.Now()
			if !t.claimStale(ctx, topic, h) {
				replay = true
				continue
			}
		}

		streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.group,
			Consumer: t.consumer,
			Streams:  []string{topic, ">"},
			Count:    1,
			Block:    t.blockTimeout,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if perr := t.client.Ping(ctx).Err(); perr != nil {
				return fmt.Errorf("redis connection lost: %w", perr)
			}
			t.logger.Error("xreadgroup failed", "topic", topic, "error", err)
			sleepCtx(ctx, abandonDelay)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if !t.dispatch(ctx, topic, msg, false, h) {
					replay = true
				}
			}
		}
	}
}

func (t *RedisStreamTransport) ensureGroup(ctx context.Context, topic string) error {
	err := t.client.XGroupCreateMkStream(ctx, topic, t.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", t.group, topic, err)
	}
	return nil
}

// replayPending redelivers entries already assigned to this consumer. It
// reports false when a handler failed and the entry is still pending.
func (t *RedisStreamTransport) replayPending(ctx context.Context, topic string, h ports.Handler) (bool, error) {
	start := "0"
	for {
		streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.group,
			Consumer: t.consumer,
			Streams:  []string{topic, start},
			Count:    pendingBatch,
			Block:    -1,
		}).Result()
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("read pending on %s: %w", topic, err)
		}

		count := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				count++
				if !t.dispatch(ctx, topic, msg, true, h) {
					return false, nil
				}
				start = msg.ID
			}
		}
		if count == 0 {
			return true, nil
		}
	}
}

// claimStale moves entries idle longer than claimIdle to this consumer and
// handles them. claimIdle exceeds the worst-case handling time, so an entry
// still being worked on by a live consumer is never taken over. It reports false when any handler failed.
func (t *RedisStreamTransport) claimStale(ctx context.Context, topic string, h ports.Handler) bool {
	msgs, _, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    t.group,
		Consumer: t.consumer,
		MinIdle:  t.claimIdle,
		Start:    "0-0",
		Count:    pendingBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("xautoclaim failed", "topic", topic, "error", err)
		}
		return true
	}

	ok := true
	for _, msg := range msgs {
		if !t.dispatch(ctx, topic, msg, true, h) {
			ok = false
		}
	}
	return ok
}

// dispatch runs the handler and acknowledges on success.
func (t *RedisStreamTransport) dispatch(ctx context.Context, topic string, msg redis.XMessage, redelivered bool, h ports.Handler) bool {
	var body []byte
	if v, ok := msg.Values[fieldPayload].(string); ok {
		body = []byte(v)
	}

	if err := h(ctx, ports.Delivery{
		Topic:       topic,
		Handle:      msg.ID,
		Body:        body,
		Redelivered: redelivered,
	}); err != nil {
		t.logger.Warn("message left pending for redelivery", "message_handle", msg.ID, "error", err)
		return false
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.client.XAck(ackCtx, topic, t.group, msg.ID).Err(); err != nil {
		t.logger.Error("failed to acknowledge message", "message_handle", msg.ID, "error", err)
		return false
	}
	return true
}

// Ping checks the Redis connection.
func (t *RedisStreamTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (t *RedisStreamTransport) Close() error {
	return t.client.Close()
}
