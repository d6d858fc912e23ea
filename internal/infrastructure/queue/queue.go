// Package queue implements ports.Transport over RabbitMQ, Redis Streams and
// an in-process channel queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"articlepipe/internal/config"
	"articlepipe/internal/metrics"
	"articlepipe/internal/ports"
)

// ErrClosed is returned by a transport used after Close.
var ErrClosed = errors.New("transport closed")

// abandonDelay throttles redelivery of a message whose handler failed.
const abandonDelay = time.Second

// Open builds the transport selected by cfg.Kind. Connectivity problems are
// not reported here; callers that need the broker at startup call Ping.
func Open(ctx context.Context, cfg config.TransportConfig, logger *slog.Logger) (ports.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case config.TransportRabbitMQ:
		t := NewRabbitMQTransport(cfg, logger)
		if err := t.Ping(ctx); err != nil {
			logger.Warn("rabbitmq not reachable at startup, will redial on demand", "error", err)
		}
		return t, nil
	case config.TransportRedis:
		return NewRedisStreamTransport(cfg, logger)
	case config.TransportMemory:
		return NewMemoryTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func observePublish(topic string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordPublish(topic, status, time.Since(start).Seconds())
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
