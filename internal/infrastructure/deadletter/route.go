// Package deadletter routes messages that cannot be processed to a
// dedicated topic on the same transport.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"articlepipe/internal/domain"
	"articlepipe/internal/ports"
)

// TransportRoute publishes dead letters as JSON to a derived topic.
type TransportRoute struct {
	publisher ports.Publisher
	topicFor  func(string) string
	logger    *slog.Logger
}

var _ ports.DeadLetterRoute = (*TransportRoute)(nil)

// NewTransportRoute creates a route; topicFor maps the source topic to its
// dead-letter topic.
func NewTransportRoute(publisher ports.Publisher, topicFor func(string) string, logger *slog.Logger) *TransportRoute {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransportRoute{
		publisher: publisher,
		topicFor:  topicFor,
		logger:    logger.With("component", "deadletter"),
	}
}

// Send publishes letter.
func (r *TransportRoute) Send(ctx context.Context, letter domain.DeadLetter) error {
	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	topic := r.topicFor(letter.Topic)
	if err := r.publisher.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("publish dead letter to %s: %w", topic, err)
	}

	r.logger.Warn("message dead-lettered",
		"dead_letter_id", letter.ID,
		"topic", topic,
		"reason", letter.Reason,
		"attempts", letter.Attempts,
		"error", letter.Error,
	)
	return nil
}

// Decode parses a dead letter read back from the dead-letter topic.
func Decode(body []byte) (domain.DeadLetter, error) {
	var letter domain.DeadLetter
	if err := json.Unmarshal(body, &letter); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	return letter, nil
}
