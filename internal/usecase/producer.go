package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"articlepipe/internal/domain"
	"articlepipe/internal/ports"
)

var (
	// ErrMissingURL is returned for an empty scrape request.
	ErrMissingURL = errors.New("url is required")
	// ErrInvalidURL is returned when the URL is not absolute http(s).
	ErrInvalidURL = errors.New("url must be an absolute http or https url")
	// ErrFetch wraps fetch and extraction failures.
	ErrFetch = errors.New("scrape article")
)

// ProducerDeps wires the scraper stage.
type ProducerDeps struct {
	Fetcher   ports.Fetcher
	Publisher ports.Publisher
	Topic     string
	Logger    *slog.Logger
}

// Producer fetches articles and enqueues them for summarization.
type Producer struct {
	fetcher   ports.Fetcher
	publisher ports.Publisher
	topic     string
	logger    *slog.Logger
}

// NewProducer constructs the scraper stage.
func NewProducer(deps ProducerDeps) *Producer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		fetcher:   deps.Fetcher,
		publisher: deps.Publisher,
		topic:     deps.Topic,
		logger:    logger.With("component", "producer"),
	}
}

// Scrape extracts the article at rawURL and publishes it. A publish failure
// is logged but does not fail the request; the extracted payload is still
// returned.
func (p *Producer) Scrape(ctx context.Context, rawURL string) (domain.ArticlePayload, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.ArticlePayload{}, ErrMissingURL
	}
	if err := validateURL(rawURL); err != nil {
		return domain.ArticlePayload{}, err
	}

	content, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		p.logger.Error("scrape failed", "url", rawURL, "error", err)
		return domain.ArticlePayload{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	payload := domain.ArticlePayload{URL: rawURL, Content: content}
	p.publish(ctx, payload)

	return payload, nil
}

func (p *Producer) publish(ctx context.Context, payload domain.ArticlePayload) {
	if p.publisher == nil {
		p.logger.Warn("no publisher configured, article not enqueued", "url", payload.URL)
		return
	}

	body, err := payload.Encode()
	if err != nil {
		p.logger.Error("encode payload", "url", payload.URL, "error", err)
		return
	}

	if err := p.publisher.Publish(ctx, p.topic, body); err != nil {
		p.logger.Error("publish failed, article not enqueued",
			"url", payload.URL,
			"topic", p.topic,
			"error", err)
		return
	}

	p.logger.Info("article enqueued",
		"url", payload.URL,
		"topic", p.topic,
		"content_length", len(payload.Content))
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
