package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

// Guard rate-limits calls to a summarizer and trips a circuit breaker after
// consecutive failures.
type Guard struct {
	next    ports.Summarizer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
}

var _ ports.Summarizer = (*Guard)(nil)

// NewGuard wraps next. RequestsPerMinute of zero disables rate limiting.
func NewGuard(next ports.Summarizer, cfg config.SummarizerConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "summarizer",
		MaxRequests: cfg.Breaker.HalfOpenRequests,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Guard{next: next, limiter: limiter, breaker: breaker}
}

// Summarize waits for a rate-limit token, then calls through the breaker.
func (g *Guard) Summarize(ctx context.Context, content string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return g.breaker.Execute(func() (string, error) {
		return g.next.Summarize(ctx, content)
	})
}

// State exposes the breaker state for health reporting.
func (g *Guard) State() string {
	return g.breaker.State().String()
}
