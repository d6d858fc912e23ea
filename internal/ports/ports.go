package ports

import (
	"context"

	"articlepipe/internal/domain"
)

// Delivery is one message handed to a subscription handler. Handle is the
// broker-specific delivery handle (AMQP delivery tag or stream entry ID).
type Delivery struct {
	Topic       string
	Handle      string
	Body        []byte
	Redelivered bool
}

// Handler processes one delivery. Returning nil acknowledges the message;
// returning an error abandons it for broker-level redelivery.
type Handler func(ctx context.Context, d Delivery) error

// Publisher enqueues messages durably.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Transport is the uniform publish/subscribe contract over a durable broker.
// Subscribe blocks running one sequential delivery loop until ctx is done
// (nil) or the broker connection is lost (error).
type Transport interface {
	Publisher
	Subscribe(ctx context.Context, topic string, h Handler) error
	Ping(ctx context.Context) error
	Close() error
}

// Fetcher returns the extracted plain text of a remote article.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Summarizer condenses article text through an external generation service.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// SummaryStore durably stores summary records.
type SummaryStore interface {
	Save(ctx context.Context, record domain.SummaryRecord) error
}

// DeadLetterRoute receives messages that cannot be processed.
type DeadLetterRoute interface {
	Send(ctx context.Context, letter domain.DeadLetter) error
}
