package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"articlepipe/internal/config"
	"articlepipe/internal/infrastructure/deadletter"
	"articlepipe/internal/infrastructure/queue"
	"articlepipe/internal/ports"
)

// DrainDeadLetters acknowledges every message on the dead-letter topic and
// writes it to w as one JSON line. It returns after idle passes without a
// message, or runs until ctx is cancelled when idle is zero.
func DrainDeadLetters(ctx context.Context, cfg config.Config, logger *slog.Logger, w io.Writer, idle time.Duration) (int, error) {
	transport, err := queue.Open(ctx, cfg.Transport, logger)
	if err != nil {
		return 0, fmt.Errorf("open transport: %w", err)
	}
	defer func() { _ = transport.Close() }()

	if err := transport.Ping(ctx); err != nil {
		return 0, fmt.Errorf("connect transport: %w", err)
	}

	return drain(ctx, transport, cfg.Consumer.DeadLetterTopic(cfg.Transport.Topic), w, idle)
}

func drain(ctx context.Context, transport ports.Transport, topic string, w io.Writer, idle time.Duration) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	activity := make(chan struct{}, 1)
	if idle > 0 {
		go func() {
			timer := time.NewTimer(idle)
			defer timer.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-activity:
					timer.Reset(idle)
				case <-timer.C:
					cancel()
					return
				}
			}
		}()
	}

	enc := json.NewEncoder(w)
	count := 0
	err := transport.Subscribe(ctx, topic, func(_ context.Context, d ports.Delivery) error {
		select {
		case activity <- struct{}{}:
		default:
		}

		letter, err := deadletter.Decode(d.Body)
		if err != nil {
			// foreign message on the topic, dump it raw
			if err := enc.Encode(map[string]string{"handle": d.Handle, "raw": string(d.Body)}); err != nil {
				return err
			}
			count++
			return nil
		}
		if err := enc.Encode(letter); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
