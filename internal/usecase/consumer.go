package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"articlepipe/internal/config"
	"articlepipe/internal/domain"
	"articlepipe/internal/metrics"
	"articlepipe/internal/ports"
	"articlepipe/internal/retry"
)

// Processing steps, used in logs and metrics.
const (
	stepSummarize = "summarize"
	stepPersist   = "persist"
)

// ConsumerDeps wires the summarizer stage.
type ConsumerDeps struct {
	Summarizer  ports.Summarizer
	Store       ports.SummaryStore
	DeadLetters ports.DeadLetterRoute
	Logger      *slog.Logger
}

// ConsumerOptions tunes timeouts, retries and the failure policy.
type ConsumerOptions struct {
	SummarizeTimeout   time.Duration
	PersistTimeout     time.Duration
	SummarizeRetry     retry.Policy
	PersistRetry       retry.Policy
	SummarizeRetryable retry.Classifier
	OnSummarizeFailure string
}

// Consumer turns one queued article into one stored summary record.
type Consumer struct {
	summarizer  ports.Summarizer
	store       ports.SummaryStore
	deadLetters ports.DeadLetterRoute
	logger      *slog.Logger

	summarizeTimeout time.Duration
	persistTimeout   time.Duration
	summarizeRetrier *retry.Retrier
	persistRetrier   *retry.Retrier
	onFailure        string
}

// NewConsumer constructs the summarizer stage.
func NewConsumer(deps ConsumerDeps, opts ConsumerOptions) *Consumer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "consumer")

	onFailure := opts.OnSummarizeFailure
	if onFailure == "" {
		onFailure = config.OnFailureSentinel
	}

	return &Consumer{
		summarizer:       deps.Summarizer,
		store:            deps.Store,
		deadLetters:      deps.DeadLetters,
		logger:           logger,
		summarizeTimeout: opts.SummarizeTimeout,
		persistTimeout:   opts.PersistTimeout,
		summarizeRetrier: retry.NewRetrier(stepSummarize, opts.SummarizeRetry, opts.SummarizeRetryable, logger),
		persistRetrier:   retry.NewRetrier(stepPersist, opts.PersistRetry, nil, logger),
		onFailure:        onFailure,
	}
}

// messageLog tracks the state of one delivery and logs each transition.
type messageLog struct {
	logger *slog.Logger
	state  domain.MessageState
}

func (m *messageLog) advance(next domain.MessageState) {
	if !m.state.CanAdvanceTo(next) {
		return
	}
	m.state = next
	m.logger.Debug("message state changed", "state", next)
}

// Handle processes one delivery. A nil return acknowledges the message; an
// error leaves it with the broker for redelivery.
func (c *Consumer) Handle(ctx context.Context, d ports.Delivery) error {
	msg := &messageLog{
		logger: c.logger.With("message_handle", d.Handle, "redelivered", d.Redelivered),
		state:  domain.StateReceived,
	}
	msg.logger.Info("message received", "state", msg.state)

	payload, err := domain.DecodeArticlePayload(d.Body)
	if err != nil {
		return c.deadLetter(ctx, msg, d, domain.ReasonMalformedPayload, 1, err)
	}
	msg.logger = msg.logger.With("url", payload.URL)

	msg.advance(domain.StateSummarizing)
	summary, attempts, err := c.summarize(ctx, payload.Content)
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, msg, err)
		}
		if c.onFailure == config.OnFailureDeadLetter {
			return c.deadLetter(ctx, msg, d, domain.ReasonSummarizeExhausted, attempts, err)
		}
		msg.logger.Warn("summarization failed, storing sentinel summary",
			"attempts", attempts,
			"error", err)
		summary = domain.SummarizeFailedSentinel
	}

	msg.advance(domain.StatePersisting)
	record := domain.NewSummaryRecord(payload, summary)
	attempts, err = c.persistRetrier.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := withTimeout(ctx, c.persistTimeout)
		defer cancel()
		err := c.store.Save(attemptCtx, record)
		metrics.RecordAttempt(stepPersist, attemptStatus(err))
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, msg, err)
		}
		return c.deadLetter(ctx, msg, d, domain.ReasonPersistExhausted, attempts, err)
	}

	msg.advance(domain.StateAcknowledged)
	metrics.RecordMessage(metrics.OutcomeAcked)
	msg.logger.Info("summary stored", "state", msg.state, "summary_length", len(summary))
	return nil
}

func (c *Consumer) summarize(ctx context.Context, content string) (string, int, error) {
	var summary string
	attempts, err := c.summarizeRetrier.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := withTimeout(ctx, c.summarizeTimeout)
		defer cancel()
		s, err := c.summarizer.Summarize(attemptCtx, content)
		metrics.RecordAttempt(stepSummarize, attemptStatus(err))
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	return summary, attempts, err
}

// deadLetter routes the delivery away. The message is acknowledged only
// when routing succeeded.
func (c *Consumer) deadLetter(ctx context.Context, msg *messageLog, d ports.Delivery, reason domain.DeadLetterReason, attempts int, cause error) error {
	if c.deadLetters == nil {
		return c.abandon(ctx, msg, fmt.Errorf("no dead-letter route for %s: %w", reason, cause))
	}

	letter := domain.NewDeadLetter(d.Topic, reason, d.Body, attempts, cause)
	if err := c.deadLetters.Send(ctx, letter); err != nil {
		return c.abandon(ctx, msg, fmt.Errorf("route dead letter (%s): %w", reason, err))
	}

	msg.advance(domain.StateDeadLettered)
	metrics.RecordMessage(metrics.OutcomeDeadLettered)
	msg.logger.Warn("message dead-lettered",
		"state", msg.state,
		"reason", reason,
		"dead_letter_id", letter.ID,
		"error", cause)
	return nil
}

func (c *Consumer) abandon(ctx context.Context, msg *messageLog, err error) error {
	metrics.RecordMessage(metrics.OutcomeAbandoned)
	if ctxErr := ctx.Err(); ctxErr != nil {
		msg.logger.Info("processing interrupted, message left unacknowledged", "state", msg.state, "error", err)
		return ctxErr
	}
	msg.logger.Error("message abandoned for redelivery", "state", msg.state, "error", err)
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func attemptStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
